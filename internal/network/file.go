package network

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// File models the structure of a networks YAML file.
type File struct {
	Networks []Descriptor `yaml:"networks"`
}

// LoadFile parses the YAML file at path and returns a registry with its
// descriptors merged over the built-in chains. An empty path yields the
// built-ins only.
func LoadFile(path string) (*Registry, error) {
	registry := Default()
	if strings.TrimSpace(path) == "" {
		return registry, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取网络配置失败: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("解析网络配置失败: %w", err)
	}
	for _, d := range file.Networks {
		if err := registry.Register(d); err != nil {
			return nil, fmt.Errorf("网络配置无效: %w", err)
		}
	}
	return registry, nil
}
