// Package mysql persists the wallet activity journal in MySQL. Schema
// changes are applied from the embedded deploy/migrations files on startup.
package mysql
