package http

import (
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/GriffinCanCode/playground/internal/domain/starter"
	"github.com/GriffinCanCode/playground/internal/domain/workspace"
	"github.com/GriffinCanCode/playground/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/playground/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/playground/internal/providers/assets"
	"github.com/GriffinCanCode/playground/internal/sandbox/host"
	"github.com/GriffinCanCode/playground/internal/sandbox/mode"
	"github.com/GriffinCanCode/playground/internal/sandbox/template"
	"github.com/GriffinCanCode/playground/internal/shared/id"
	"github.com/GriffinCanCode/playground/internal/storage"
)

// MaxSnippetBytes bounds a saved snippet
const MaxSnippetBytes = 256 << 10

// Version is reported by the root endpoint
const Version = "0.3.0"

// Deps are the collaborators the handlers serve
type Deps struct {
	Generator  *template.Generator
	Documents  *host.DocumentStore
	Store      storage.CodeStore
	Assets     *assets.Provider
	Workspaces *workspace.Manager
	Metrics    *monitoring.Metrics
	Logger     *zap.Logger
}

// Handlers contains all HTTP handlers
type Handlers struct {
	gen        *template.Generator
	documents  *host.DocumentStore
	store      storage.CodeStore
	assets     *assets.Provider
	workspaces *workspace.Manager
	metrics    *monitoring.Metrics
	log        *zap.Logger
}

// NewHandlers creates a new handler set
func NewHandlers(deps Deps) *Handlers {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Generator == nil {
		deps.Generator = template.New()
	}
	return &Handlers{
		gen:        deps.Generator,
		documents:  deps.Documents,
		store:      deps.Store,
		assets:     deps.Assets,
		workspaces: deps.Workspaces,
		metrics:    deps.Metrics,
		log:        deps.Logger,
	}
}

// Register mounts every route on r
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	r.GET("/modes", h.ListModes)
	r.GET("/modes/:mode/document", h.ModeDocument)
	r.GET("/modes/:mode/starter", h.ModeStarter)

	r.GET("/documents/:id", h.Document)
	r.GET("/assets/:name", h.Asset)

	r.GET("/snippets", h.ListSnippets)
	r.GET("/snippets/:mode", h.GetSnippet)
	r.PUT("/snippets/:mode", h.PutSnippet)
	r.DELETE("/snippets/:mode", h.DeleteSnippet)

	r.GET("/workspaces", h.ListWorkspaces)
	r.GET("/workspaces/:id", h.GetWorkspace)
	r.GET("/workspaces/:id/dom", h.InspectWorkspace)

	r.POST("/sandbox-events", h.SandboxEvents)
}

// Root handles the root endpoint
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "Code Playground",
		"version": Version,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{"status": "healthy"}
	if h.workspaces != nil {
		body["workspaces"] = h.workspaces.Count()
	}
	if h.documents != nil {
		body["documents"] = h.documents.Len()
	}
	if h.assets != nil {
		state := h.assets.BreakerState()
		body["assets"] = gin.H{"breaker": state.String()}
		if state == resilience.StateOpen {
			body["status"] = "degraded"
		}
	}
	c.JSON(http.StatusOK, body)
}

type modeSummary struct {
	mode.Spec
	Title    string            `json:"title"`
	Requests []starter.Request `json:"requests,omitempty"`
}

// ListModes returns the strategy table
func (h *Handlers) ListModes(c *gin.Context) {
	specs := mode.All()
	out := make([]modeSummary, 0, len(specs))
	for _, spec := range specs {
		s := modeSummary{Spec: spec}
		if st, err := starter.For(spec.Mode); err == nil {
			s.Title = st.Title
			s.Requests = st.SuggestedRequests()
		}
		out = append(out, s)
	}
	c.JSON(http.StatusOK, gin.H{"modes": out})
}

// ModeDocument renders the sandbox document of a mode
func (h *Handlers) ModeDocument(c *gin.Context) {
	m, ok := h.parseMode(c)
	if !ok {
		return
	}
	placeholder, err := queryBool(c, "placeholder")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "placeholder must be a boolean"})
		return
	}

	doc, err := h.gen.Generate(m, placeholder)
	if err != nil {
		h.log.Error("Failed to generate document", zap.String("mode", m.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate document"})
		return
	}
	etag := documentETag(doc)
	c.Header("Cache-Control", "no-cache")
	c.Header("ETag", etag)
	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(doc))
}

// ModeStarter returns the starter code of a mode
func (h *Handlers) ModeStarter(c *gin.Context) {
	m, ok := h.parseMode(c)
	if !ok {
		return
	}
	st, err := starter.For(m)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"mode":     st.Mode,
		"title":    st.Title,
		"code":     st.Code,
		"requests": st.SuggestedRequests(),
	})
}

// Document serves a mounted document until its handle is torn down
func (h *Handlers) Document(c *gin.Context) {
	doc, err := h.documents.Get(id.DocumentID(c.Param("id")))
	if err != nil {
		if errors.Is(err, host.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found or revoked"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Header("X-Sandbox-Mode", doc.Mode.String())
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(doc.HTML))
}

// Asset serves a mirrored capability script
func (h *Handlers) Asset(c *gin.Context) {
	if h.assets == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "asset proxy disabled"})
		return
	}
	name := c.Param("name")
	asset, err := h.assets.Get(c.Request.Context(), name)
	if err != nil {
		status := assetStatus(err)
		if status >= http.StatusInternalServerError {
			h.log.Warn("Asset unavailable", zap.String("asset", name), zap.Error(err))
		}
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.Header("Cache-Control", "public, max-age=3600")
	c.Header("Vary", "Accept-Encoding")
	if asset.ETag != "" {
		c.Header("ETag", asset.ETag)
		if c.GetHeader("If-None-Match") == asset.ETag {
			c.Status(http.StatusNotModified)
			return
		}
	}
	if acceptsGzip(c.GetHeader("Accept-Encoding")) && len(asset.Gzip) > 0 {
		c.Header("Content-Encoding", "gzip")
		c.Data(http.StatusOK, asset.ContentType, asset.Gzip)
		return
	}
	c.Data(http.StatusOK, asset.ContentType, asset.Body)
}

// ListSnippets lists saved snippets
func (h *Handlers) ListSnippets(c *gin.Context) {
	snippets, err := h.store.List(c.Request.Context())
	if err != nil {
		h.log.Error("Failed to list snippets", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list snippets"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snippets": snippets})
}

// GetSnippet returns the saved code of a mode, or its starter
func (h *Handlers) GetSnippet(c *gin.Context) {
	m, ok := h.parseMode(c)
	if !ok {
		return
	}
	code, saved, err := h.store.Load(c.Request.Context(), m)
	if err != nil {
		h.log.Error("Failed to load snippet", zap.String("mode", m.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load snippet"})
		return
	}
	if !saved {
		code = starter.Code(m)
	}
	c.JSON(http.StatusOK, gin.H{"mode": m, "code": code, "saved": saved})
}

type snippetRequest struct {
	Code *string `json:"code" binding:"required"`
}

// PutSnippet saves the code of a mode
func (h *Handlers) PutSnippet(c *gin.Context) {
	m, ok := h.parseMode(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxSnippetBytes+1024)

	var req snippetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "snippet too large"})
			return
		}
		if errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "request body required"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(*req.Code) > MaxSnippetBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "snippet too large"})
		return
	}

	if err := h.store.Save(c.Request.Context(), m, *req.Code); err != nil {
		h.log.Error("Failed to save snippet", zap.String("mode", m.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save snippet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "mode": m})
}

// DeleteSnippet forgets the saved code of a mode
func (h *Handlers) DeleteSnippet(c *gin.Context) {
	m, ok := h.parseMode(c)
	if !ok {
		return
	}
	if err := h.store.Delete(c.Request.Context(), m); err != nil {
		if errors.Is(err, storage.ErrSnippetNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.log.Error("Failed to delete snippet", zap.String("mode", m.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete snippet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "mode": m})
}

// ListWorkspaces lists open workspaces
func (h *Handlers) ListWorkspaces(c *gin.Context) {
	list := h.workspaces.List()
	c.JSON(http.StatusOK, gin.H{"workspaces": list, "count": len(list)})
}

// GetWorkspace returns one workspace snapshot
func (h *Handlers) GetWorkspace(c *gin.Context) {
	w, ok := h.workspaces.Get(id.WorkspaceID(c.Param("id")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "workspace not found"})
		return
	}
	c.JSON(http.StatusOK, w.Snapshot())
}

// InspectWorkspace returns the DOM snapshot of a workspace, or the nodes an
// xpath query selects from it
func (h *Handlers) InspectWorkspace(c *gin.Context) {
	w, ok := h.workspaces.Get(id.WorkspaceID(c.Param("id")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "workspace not found"})
		return
	}
	xpath := c.Query("xpath")
	if xpath == "" {
		c.JSON(http.StatusOK, gin.H{"dom": w.Snapshot().DOM})
		return
	}
	matches, err := w.Inspect(xpath)
	if err != nil {
		if errors.Is(err, workspace.ErrNoDOM) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"xpath": xpath, "matches": matches, "count": len(matches)})
}

func (h *Handlers) parseMode(c *gin.Context) (mode.Mode, bool) {
	m, err := mode.Parse(c.Param("mode"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return "", false
	}
	return m, true
}

func assetStatus(err error) int {
	var up *assets.UpstreamError
	switch {
	case errors.Is(err, assets.ErrUnknownAsset):
		return http.StatusNotFound
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		return http.StatusServiceUnavailable
	case errors.As(err, &up) && up.Status == http.StatusNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func documentETag(doc string) string {
	sum := blake2b.Sum256([]byte(doc))
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

func queryBool(c *gin.Context, key string) (bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

func acceptsGzip(header string) bool {
	for _, part := range strings.Split(header, ",") {
		enc := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if enc == "gzip" || enc == "*" {
			return true
		}
	}
	return false
}
