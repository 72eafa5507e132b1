package server_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers/legacy"
	"github.com/stretchr/testify/assert"

	"github.com/kode4food/braid/internal/server"
)

var ginParam = regexp.MustCompile(`:([A-Za-z]+)`)

func TestOpenAPIDocument(t *testing.T) {
	doc, err := server.OpenAPI()
	assert.NoError(t, err)
	assert.Equal(t, "braid", doc.Info.Title)
}

func TestOpenAPIEndpoint(t *testing.T) {
	withServer(t, func(env *testServerEnv) {
		w := env.do("GET", "/openapi.json", "")
		assert.Equal(t, http.StatusOK, w.Code)

		doc, err := openapi3.NewLoader().LoadFromData(w.Body.Bytes())
		assert.NoError(t, err)
		assert.NoError(t, doc.Validate(context.Background()))
		assert.Equal(t, "test", doc.Info.Version)
	})
}

func TestOpenAPICoversRoutes(t *testing.T) {
	withServer(t, func(env *testServerEnv) {
		doc, err := server.OpenAPI()
		assert.NoError(t, err)

		for _, r := range env.Router.Routes() {
			path := ginParam.ReplaceAllString(r.Path, "{$1}")
			item := doc.Paths.Find(path)
			if !assert.NotNil(t, item, "undocumented path %s", path) {
				continue
			}
			assert.NotNil(t, item.GetOperation(r.Method),
				"undocumented operation %s %s", r.Method, path,
			)
		}
	})
}

func TestResponsesMatchOpenAPI(t *testing.T) {
	withServer(t, func(env *testServerEnv) {
		doc, err := server.OpenAPI()
		assert.NoError(t, err)
		router, err := legacy.NewRouter(doc)
		assert.NoError(t, err)

		check := func(method, path, body string) {
			t.Helper()
			w := env.do(method, path, body)
			req := httptest.NewRequest(method, path, nil)
			route, params, err := router.FindRoute(req)
			if !assert.NoError(t, err) {
				return
			}
			err = openapi3filter.ValidateResponse(context.Background(),
				&openapi3filter.ResponseValidationInput{
					RequestValidationInput: &openapi3filter.RequestValidationInput{
						Request:    req,
						PathParams: params,
						Route:      route,
					},
					Status: w.Code,
					Header: w.Header(),
					Body:   io.NopCloser(bytes.NewReader(w.Body.Bytes())),
				},
			)
			assert.NoError(t, err, "%s %s", method, path)
		}

		check("GET", "/health", "")
		check("POST", "/orchestrations/square?id=documented", "5")
		env.waitDone(t, "documented")
		check("GET", "/instances/documented", "")
		check("GET", "/instances/documented/history", "")
		check("GET", "/instances/missing", "")
		check("POST", "/orchestrations/unknown", "")
	})
}
