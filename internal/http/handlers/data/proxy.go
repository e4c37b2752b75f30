package data

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/teakspice/shopdb/internal/client"
	"github.com/teakspice/shopdb/internal/constants"
	"github.com/teakspice/shopdb/internal/http/handlers/shared"
	"github.com/teakspice/shopdb/internal/http/response"

	"github.com/gin-gonic/gin"
)

// 支持 cacheStrategy 的读操作
var cacheableActions = map[string]bool{
	client.ActionFindUnique:        true,
	client.ActionFindUniqueOrThrow: true,
	client.ActionFindFirst:         true,
	client.ActionFindFirstOrThrow:  true,
	client.ActionFindMany:          true,
	client.ActionCount:             true,
}

// BatchRequest 批量事务请求
type BatchRequest struct {
	Operations []client.Operation `json:"operations"`
}

// ModelSummary 模型元数据摘要
type ModelSummary struct {
	Name      string   `json:"name"`
	Table     string   `json:"table"`
	Fields    []string `json:"fields"`
	Relations []string `json:"relations"`
	Uniques   []string `json:"uniques"`
}

// Dispatch POST /api/v1/:model/:action
func (h *Handler) Dispatch(c *gin.Context) {
	model := c.Param("model")
	action := c.Param("action")
	body, err := readBody(c)
	if err != nil {
		respondClientError(c, err)
		return
	}
	if cacheableActions[action] {
		body, err = h.withDefaultCache(body)
		if err != nil {
			respondClientError(c, &client.ValidationError{Model: model, Message: "invalid arguments: " + err.Error()})
			return
		}
	}
	out, err := h.Client.Dispatch(c.Request.Context(), model, action, body)
	if err != nil {
		respondClientError(c, err)
		return
	}
	response.Success(c, out)
}

// Batch POST /api/v1/$transaction
func (h *Handler) Batch(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		respondClientError(c, err)
		return
	}
	var req BatchRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondClientError(c, &client.ValidationError{Message: "invalid batch request: " + err.Error()})
		return
	}
	if len(req.Operations) == 0 {
		respondClientError(c, &client.ValidationError{Message: "batch request has no operations"})
		return
	}
	results, err := h.Client.DispatchBatch(c.Request.Context(), req.Operations)
	if err != nil {
		respondClientError(c, err)
		return
	}
	response.Success(c, results)
}

// Models GET /api/v1/models
func (h *Handler) Models(c *gin.Context) {
	reg := h.Client.Registry()
	out := make([]ModelSummary, 0, len(reg.Names()))
	for _, name := range reg.Names() {
		info, ok := reg.Model(name)
		if !ok {
			continue
		}
		summary := ModelSummary{
			Name:      info.Name,
			Table:     info.Table,
			Fields:    make([]string, 0, len(info.Fields)),
			Relations: info.RelationNames(),
			Uniques:   make([]string, 0, len(info.Uniques)),
		}
		for _, f := range info.Fields {
			summary.Fields = append(summary.Fields, f.Name)
		}
		for _, u := range info.Uniques {
			summary.Uniques = append(summary.Uniques, u.Name)
		}
		out = append(out, summary)
	}
	response.Success(c, out)
}

// Health GET /healthz
func (h *Handler) Health(c *gin.Context) {
	sqlDB, err := h.Client.SQLDB(c.Request.Context())
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		shared.RespondError(c, response.WrapError(response.CodeUnavailable, "database unavailable", err))
		return
	}
	driver, _ := h.Client.Driver(c.Request.Context())
	response.Success(c, gin.H{"status": "ok", "driver": driver})
}

func readBody(c *gin.Context) (json.RawMessage, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, constants.MaxProxyBodyBytes)
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, err
	}
	return bytes.TrimSpace(body), nil
}

// withDefaultCache 请求未指定 cacheStrategy 时补上配置的默认 TTL
func (h *Handler) withDefaultCache(body json.RawMessage) (json.RawMessage, error) {
	ttl := 0
	if h.Config != nil {
		ttl = h.Config.Client.CacheTTLSecond
	}
	if ttl <= 0 || h.Cache == nil {
		return body, nil
	}
	args := map[string]json.RawMessage{}
	if len(body) > 0 && string(body) != "null" {
		if err := json.Unmarshal(body, &args); err != nil {
			return nil, err
		}
	}
	if _, ok := args["cacheStrategy"]; ok {
		return body, nil
	}
	args["cacheStrategy"] = json.RawMessage(`{"ttl":` + jsonInt(ttl) + `}`)
	return json.Marshal(args)
}

func jsonInt(n int) string {
	raw, _ := json.Marshal(n)
	return string(raw)
}
