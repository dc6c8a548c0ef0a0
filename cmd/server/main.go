package main

import (
	"log"
	"strconv"

	"github.com/beego/beego/v2/server/web"
	"go.uber.org/zap"

	"github.com/kalyuugh/backend-go/app/bootstrap"
	"github.com/kalyuugh/backend-go/app/router"
	"github.com/kalyuugh/backend-go/internal/config"
	"github.com/kalyuugh/backend-go/internal/logger"
)

func main() {
	app, err := bootstrap.Init()
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer app.Shutdown()

	router.Init()

	// 配置Beego全局设置
	web.BConfig.AppName = "Kalyuugh Chat Service"
	web.BConfig.CopyRequestBody = true
	web.BConfig.WebConfig.AutoRender = false

	if p, err := strconv.Atoi(config.AppConfig.Server.Port); err == nil {
		web.BConfig.Listen.HTTPPort = p
	} else {
		web.BConfig.Listen.HTTPPort = 8000
	}

	logger.Info("Starting Kalyuugh Chat Service", zap.Int("port", web.BConfig.Listen.HTTPPort))
	web.Run()
}
