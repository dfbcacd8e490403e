package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4/middleware"
)

// DevOrigins are always allowed so the dashboard can run locally
var DevOrigins = []string{
	"http://localhost:5173",
	"http://localhost:3000",
}

// AllowedMethods are the methods browsers may use cross-origin
var AllowedMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodDelete,
}

// AllowedHeaders are the request headers browsers may send cross-origin
var AllowedHeaders = []string{
	"Origin",
	"Content-Type",
	"Accept",
	"Accept-Language",
	"Authorization",
}

// CORSConfig returns the CORS configuration for the dashboard at frontendURL.
// The Stripe webhook is server to server and does not need CORS.
func CORSConfig(frontendURL string) middleware.CORSConfig {
	origins := append([]string(nil), DevOrigins...)
	if frontendURL = strings.TrimRight(strings.TrimSpace(frontendURL), "/"); frontendURL != "" {
		found := false
		for _, o := range origins {
			if o == frontendURL {
				found = true
			}
		}
		if !found {
			origins = append(origins, frontendURL)
		}
	}

	return middleware.CORSConfig{
		AllowOrigins:     origins,
		AllowMethods:     AllowedMethods,
		AllowHeaders:     AllowedHeaders,
		AllowCredentials: true,
	}
}
