package server

import (
	"context"
	_ "embed"
	"net/http"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gin-gonic/gin"
)

//go:embed openapi.yaml
var openAPISource []byte

var loadOpenAPI = sync.OnceValues(func() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openAPISource)
	if err != nil {
		return nil, err
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, err
	}
	return doc, nil
})

// OpenAPI returns the validated description of the HTTP API
func OpenAPI() (*openapi3.T, error) {
	return loadOpenAPI()
}

func (s *Server) handleOpenAPI(c *gin.Context) {
	doc, err := OpenAPI()
	if err != nil {
		writeError(c, ErrQueryFailed, err)
		return
	}
	out := *doc
	if s.version != "" {
		info := *doc.Info
		info.Version = s.version
		out.Info = &info
	}
	c.JSON(http.StatusOK, &out)
}
