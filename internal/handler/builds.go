package handler

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/haatos/cijoe/internal/service"
	"github.com/haatos/cijoe/internal/store"
	"github.com/labstack/echo/v4"
)

var jsonpCallbackRe = regexp.MustCompile(`^[A-Za-z_$][0-9A-Za-z_$.]*$`)

type BuildHandler struct {
	buildService service.BuildServicer
	events       *service.BuildEvents
}

func NewBuildHandler(buildService service.BuildServicer, events *service.BuildEvents) *BuildHandler {
	return &BuildHandler{buildService: buildService, events: events}
}

func SetupBuildRoutes(
	e *echo.Echo,
	buildService service.BuildServicer,
	events *service.BuildEvents,
) {
	h := NewBuildHandler(buildService, events)
	e.GET("/", h.GetStatusPage)
	e.POST("/", h.PostBuild)
	e.GET("/ping", h.GetPing)

	api := e.Group("/api")
	api.GET("/json", h.GetStatusJSON)
	api.GET("/sse/status", h.GetStatusSSE)
	api.GET("/sse/output", h.GetOutputSSE)
}

// GetPing answers 200 with the last sha only when the last build worked and
// nothing is running.
func (h *BuildHandler) GetPing(c echo.Context) error {
	last := h.buildService.LastBuild()
	if h.buildService.Building() || last == nil {
		return c.String(http.StatusPreconditionFailed, "building")
	}
	if !last.Worked() {
		return c.String(http.StatusPreconditionFailed, last.SHA)
	}
	return c.String(http.StatusOK, last.SHA)
}

// PostBuild handles push webhooks and the rebuild button. A push only
// triggers a build for the default branch unless ?branch= names one.
func (h *BuildHandler) PostBuild(c echo.Context) error {
	bp := new(BuildParams)
	if err := c.Bind(bp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid build request")
	}
	branch := c.QueryParam("branch")

	var pushedBranch string
	if !bp.Rebuild && bp.Payload != "" {
		payload := new(PushPayload)
		if err := json.Unmarshal([]byte(bp.Payload), payload); err != nil {
			return newError(err, http.StatusBadRequest, "invalid payload")
		}
		pushedBranch = strings.TrimPrefix(payload.Ref, "refs/heads/")
		log.Printf("push to %s at %.7s\n", pushedBranch, payload.After)
	}

	if bp.Rebuild || branch != "" || pushedBranch == h.buildService.DefaultBranch() {
		h.buildService.RequestBuild(branch)
	}

	return c.Redirect(http.StatusFound, c.Request().URL.Path)
}

type buildResponse struct {
	Branch        string            `json:"branch"`
	SHA           string            `json:"sha"`
	ShortSHA      string            `json:"short_sha"`
	Status        store.BuildStatus `json:"status"`
	StartedAt     time.Time         `json:"started_at"`
	FinishedAt    *time.Time        `json:"finished_at"`
	Duration      float64           `json:"duration_seconds"`
	CommitAuthor  string            `json:"commit_author,omitempty"`
	CommitMessage string            `json:"commit_message,omitempty"`
	CommitURL     string            `json:"commit_url,omitempty"`
	Output        string            `json:"output"`
}

type statusResponse struct {
	User          string         `json:"user"`
	Project       string         `json:"project"`
	URL           string         `json:"url"`
	DefaultBranch string         `json:"default_branch"`
	Building      bool           `json:"building"`
	Queue         []string       `json:"queue"`
	CurrentBuild  *buildResponse `json:"current_build"`
	LastBuild     *buildResponse `json:"last_build"`
}

func (h *BuildHandler) newBuildResponse(b *store.Build) *buildResponse {
	if b == nil {
		return nil
	}
	br := &buildResponse{
		Branch:     b.Branch,
		SHA:        b.SHA,
		ShortSHA:   b.ShortSHA(),
		Status:     b.Status,
		StartedAt:  b.StartedAt,
		FinishedAt: b.FinishedAt,
		Duration:   b.Duration().Seconds(),
		Output:     b.CleanOutput(),
	}
	if b.Commit != nil {
		br.CommitAuthor = b.Commit.Author
		br.CommitMessage = b.Commit.Message
	}
	if b.SHA != "" {
		br.CommitURL = h.buildService.URL() + "/commit/" + b.SHA
	}
	return br
}

func (h *BuildHandler) status() statusResponse {
	queue := h.buildService.QueuedBranches()
	if queue == nil {
		queue = []string{}
	}
	return statusResponse{
		User:          h.buildService.User(),
		Project:       h.buildService.Project(),
		URL:           h.buildService.URL(),
		DefaultBranch: h.buildService.DefaultBranch(),
		Building:      h.buildService.Building(),
		Queue:         queue,
		CurrentBuild:  h.newBuildResponse(h.buildService.CurrentBuild()),
		LastBuild:     h.newBuildResponse(h.buildService.LastBuild()),
	}
}

// GetStatusJSON wraps the status in a JSONP callback when ?jsonp= is given.
// Both forms are served as application/json.
func (h *BuildHandler) GetStatusJSON(c echo.Context) error {
	sp := new(StatusParams)
	if err := c.Bind(sp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid query")
	}
	if sp.JSONP == "" {
		return c.JSON(http.StatusOK, h.status())
	}
	if !jsonpCallbackRe.MatchString(sp.JSONP) {
		return newError(nil, http.StatusBadRequest, "invalid jsonp callback")
	}

	b, err := json.Marshal(h.status())
	if err != nil {
		return newError(err, http.StatusInternalServerError, "unable to encode status")
	}
	body := fmt.Sprintf("%s(%s)", sp.JSONP, b)
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, []byte(body))
}

func (h *BuildHandler) GetStatusPage(c echo.Context) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s/%s  %s\n", h.buildService.User(), h.buildService.Project(), h.buildService.URL())
	fmt.Fprintf(&sb, "branch: %s\n", h.buildService.DefaultBranch())

	if current := h.buildService.CurrentBuild(); current != nil {
		fmt.Fprintf(&sb, "building: %s", current.Branch)
		if current.SHA != "" {
			fmt.Fprintf(&sb, " at %s", current.ShortSHA())
		}
		fmt.Fprintf(&sb, " since %s\n", current.StartedAt.Format(time.RFC1123))
	}
	if queue := h.buildService.QueuedBranches(); len(queue) > 0 {
		fmt.Fprintf(&sb, "queued: %s\n", strings.Join(queue, ", "))
	}

	last := h.buildService.LastBuild()
	if last == nil {
		sb.WriteString("no builds yet\n")
		return c.String(http.StatusOK, sb.String())
	}
	fmt.Fprintf(&sb, "last build: %s at %s %s in %s\n",
		last.Branch, last.ShortSHA(), last.Status, last.Duration().Round(time.Second))
	if last.Commit != nil {
		fmt.Fprintf(&sb, "commit: %s\n", last.Commit.Author)
		fmt.Fprintf(&sb, "  %s\n", strings.ReplaceAll(last.Commit.Message, "\n", "\n  "))
	}
	if output := last.CleanOutput(); output != "" {
		fmt.Fprintf(&sb, "\n%s\n", output)
	}
	return c.String(http.StatusOK, sb.String())
}

func setSSEHeaders(c echo.Context) {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()
}

// GetStatusSSE streams every build state change as a JSON event.
func (h *BuildHandler) GetStatusSSE(c echo.Context) error {
	setSSEHeaders(c)

	id := uuid.NewString()
	ch := h.events.Status.AddClient(id)
	defer h.events.Status.RemoveClient(id)

	w := c.Response()
	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case b := <-ch:
			data, err := json.Marshal(h.newBuildResponse(&b))
			if err != nil {
				log.Println("err marshaling build:", err)
				continue
			}
			event := &Event{Event: []byte("status"), Data: data}
			if err := event.MarshalTo(w); err != nil {
				log.Println("err marshaling event data:", err)
				return nil
			}
			w.Flush()
		}
	}
}

// GetOutputSSE streams the running build's output as it is produced.
func (h *BuildHandler) GetOutputSSE(c echo.Context) error {
	setSSEHeaders(c)

	id := uuid.NewString()
	ch := h.events.Output.AddClient(id)
	defer h.events.Output.RemoveClient(id)

	w := c.Response()
	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case out := <-ch:
			event := &Event{Event: []byte("output"), Data: []byte(out)}
			if err := event.MarshalTo(w); err != nil {
				log.Println("err marshaling event data:", err)
				return nil
			}
			w.Flush()
		}
	}
}
