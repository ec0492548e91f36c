package handlers

import (
	"context"

	"github.com/orsa-go/orsa/pkg/api/middleware"
)

func getRequestID(ctx context.Context) string {
	return middleware.GetRequestID(ctx)
}
