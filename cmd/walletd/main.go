package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"walletlink/internal/config"
)

// main 是 walletd 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatalf("walletd 运行失败: %v", err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "walletd",
		Usage: "track a browser-style wallet connection and expose it over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML or JSON config file",
				EnvVars: []string{config.EnvPath},
			},
		},
		Commands: []*cli.Command{
			runCmd,
			networksCmd,
			probeCmd,
		},
		DefaultCommand: "run",
	}
}

// loadConfig 读取 --config 指定的文件，未指定时使用默认配置。
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := config.ResolvePath(c.String("config"))
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		return config.Default(wd), nil
	}
	return config.Load(path)
}
