//go:build swagger

// Build with docs: go generate -tags swagger ./cmd/api && go build -tags swagger ./cmd/api

//go:generate swag init -g main.go -d ./,../../pkg/api/handlers -o ../../docs --parseDependency

package main

import (
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/jordanlanch/contentforge/docs" // Swagger docs (generated)
)

func init() {
	registerDocs = func(e *echo.Echo) {
		e.GET("/swagger/*", echoSwagger.WrapHandler)
	}
}
