package router

import (
	"github.com/beego/beego/v2/server/web"

	"github.com/kalyuugh/backend-go/app/controllers"
	"github.com/kalyuugh/backend-go/app/middleware"
	"github.com/kalyuugh/backend-go/internal/services"
)

// Init registers all routes. Must be called after config is loaded.
func Init() {
	web.InsertFilter("/*", web.BeforeRouter, middleware.CORSMiddleware)

	web.Router("/", &controllers.RootController{}, "get:Index")
	web.Router("/health", &controllers.HealthController{}, "get:Health")

	chatController := &controllers.ChatController{}
	web.Router("/chat", chatController, "post:Post")
	web.Router("/store-chat", chatController, "post:StoreChat")

	web.Router("/search", &controllers.SearchController{}, "post:Post")

	web.Handler("/metrics", services.NewMetricsService().Handler())
}
