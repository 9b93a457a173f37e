// Package autoload configures the global logger from LOG_* environment
// variables as a side effect of being imported. Binaries import it blank:
//
//	_ "github.com/attachehq/attache/pkg/logger/autoload"
package autoload

import (
	configx "github.com/attachehq/attache/pkg/config"
	logx "github.com/attachehq/attache/pkg/logger"
)

func init() {
	logx.Init(*configx.MustNew[logx.Config]("LOG"))
}
