package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/kode4food/braid/pkg/api"
)

var errMalformedBody = errors.New("malformed body")

func (s *Server) startInstance(c *gin.Context) {
	name := c.Param("name")
	input, err := readInput(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrInvalidJSON, err),
			Status: http.StatusBadRequest,
		})
		return
	}

	ctx := c.Request.Context()
	var id api.InstanceID
	if reqID := c.Query("id"); reqID != "" {
		id = api.InstanceID(reqID)
		err = s.client.StartWithID(ctx, id, name, input)
	} else {
		id, err = s.client.Start(ctx, name, input)
	}
	if err != nil {
		writeError(c, ErrStartFailed, err)
		return
	}

	res := startResponse(c.Request, id)
	c.Header("Location", res.StatusURL)
	c.JSON(http.StatusAccepted, res)
}

func (s *Server) getInstance(c *gin.Context) {
	id := api.InstanceID(c.Param("id"))
	st, err := s.client.GetStatus(c.Request.Context(), id)
	if err != nil {
		writeError(c, ErrQueryFailed, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) getHistory(c *gin.Context) {
	id := api.InstanceID(c.Param("id"))
	evs, err := s.client.GetHistory(c.Request.Context(), id)
	if err != nil {
		writeError(c, ErrQueryFailed, err)
		return
	}
	c.JSON(http.StatusOK, api.HistoryResponse{
		ID:     id,
		Events: evs,
		Count:  len(evs),
	})
}

func (s *Server) terminateInstance(c *gin.Context) {
	id := api.InstanceID(c.Param("id"))

	var req api.TerminateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{
				Error:  fmt.Sprintf("%s: %v", ErrInvalidJSON, err),
				Status: http.StatusBadRequest,
			})
			return
		}
	}

	ctx := c.Request.Context()
	if err := s.client.Terminate(ctx, id, req.Reason); err != nil {
		writeError(c, ErrTerminateFailed, err)
		return
	}

	st, err := s.client.GetStatus(ctx, id)
	if err != nil {
		writeError(c, ErrQueryFailed, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// readInput returns the request body as the instance input. An empty body
// starts the instance with a null input
func readInput(c *gin.Context) (json.RawMessage, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, err
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}
	if !json.Valid(body) {
		return nil, errMalformedBody
	}
	return body, nil
}

// startResponse builds the follow-up URLs for a started instance relative
// to the host the request was addressed to
func startResponse(r *http.Request, id api.InstanceID) *api.StartResponse {
	scheme, wsScheme := "http", "ws"
	if r.TLS != nil {
		scheme, wsScheme = "https", "wss"
	}
	base := "/instances/" + url.PathEscape(string(id))
	return &api.StartResponse{
		ID:           id,
		StatusURL:    scheme + "://" + r.Host + base,
		HistoryURL:   scheme + "://" + r.Host + base + "/history",
		TerminateURL: scheme + "://" + r.Host + base + "/terminate",
		WebSocketURL: wsScheme + "://" + r.Host + base + "/ws",
	}
}
