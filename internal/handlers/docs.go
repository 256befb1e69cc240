package handlers

import (
	"github.com/gin-gonic/gin"
	_ "github.com/phototag/catalog-service/docs"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// RegisterDocs serves the swagger UI and document under /docs
func RegisterDocs(r gin.IRouter) {
	r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}
