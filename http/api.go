package http

import (
	"math"
	"net/http"
	"strconv"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/quadrant/featureflag"
	"github.com/aukilabs/quadrant/models"
	"github.com/aukilabs/quadrant/quadtree"
	"github.com/aukilabs/quadrant/render"
	"github.com/aukilabs/quadrant/simulation"
	"github.com/segmentio/encoding/json"
)

const (
	// The maximum size of a request body.
	maxBodySize = 8 << 20

	// The side of the query range used when a request gives none.
	DefaultQueryRangeSize = 80
)

const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeRunNotFound = "run_not_found"
	ErrCodeInternal    = "internal_error"
)

// ErrorResponse is the body of an error response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// RunAPI serves the simulation runs over HTTP.
type RunAPI struct {
	// The store that contains all the server runs.
	Runs *models.RunStore

	// The limits applied to requested simulations.
	Limits simulation.Limits

	// The side of the query range used when a request gives none.
	QueryRangeSize float64

	FeatureFlags featureflag.FeatureFlag
}

// Register registers the run routes on the given mux.
func (a *RunAPI) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /runs", a.HandleCreate)
	mux.HandleFunc("GET /runs", a.HandleList)
	mux.HandleFunc("GET /runs/{id}", a.HandleGet)
	mux.HandleFunc("DELETE /runs/{id}", a.HandleDelete)
	mux.HandleFunc("GET /runs/{id}/query", a.HandleQuery)
	mux.HandleFunc("GET /runs/{id}/boundaries", a.HandleBoundaries)
	mux.HandleFunc("GET /runs/{id}/render.png", a.HandleRender)
}

func (a *RunAPI) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var opts simulation.Options
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&opts); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, errors.New("decoding run options failed").Wrap(err))
		return
	}

	var callerPointsDisabled bool
	a.FeatureFlags.IfSet(featureflag.FlagDisableCallerPoints, func() {
		callerPointsDisabled = len(opts.Points) != 0
	})
	if callerPointsDisabled {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, errors.New("caller points are disabled"))
		return
	}

	id := a.Runs.NewID()
	run, err := simulation.Build(id, opts, a.Limits)
	if err != nil {
		a.Runs.ReleaseID(id)
		writeBuildError(w, err)
		return
	}

	if err := a.Runs.Add(r.Context(), run); err != nil {
		a.Runs.ReleaseID(id)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, errors.New("adding run failed").Wrap(err))
		return
	}

	doc := a.Runs.Document(run, a.FeatureFlags.DocumentOptions())
	w.Header().Set("Location", "/runs/"+doc.ID)
	writeJSON(w, http.StatusCreated, doc)
}

func (a *RunAPI) HandleList(w http.ResponseWriter, r *http.Request) {
	runs := a.Runs.List()

	summaries := make([]models.RunSummary, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, a.Runs.Summary(run))
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (a *RunAPI) HandleGet(w http.ResponseWriter, r *http.Request) {
	run, ok := a.run(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.Runs.Document(run, a.FeatureFlags.DocumentOptions()))
}

func (a *RunAPI) HandleDelete(w http.ResponseWriter, r *http.Request) {
	run, ok := a.run(w, r)
	if !ok {
		return
	}

	a.Runs.Remove(r.Context(), run)
	w.WriteHeader(http.StatusNoContent)
}

func (a *RunAPI) HandleQuery(w http.ResponseWriter, r *http.Request) {
	run, ok := a.run(w, r)
	if !ok {
		return
	}

	rng, err := a.parseRange(r, true)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	writeJSON(w, http.StatusOK, models.QueryResult{
		Range:  *rng,
		Points: run.Query(*rng),
	})
}

func (a *RunAPI) HandleBoundaries(w http.ResponseWriter, r *http.Request) {
	run, ok := a.run(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run.Boundaries())
}

func (a *RunAPI) HandleRender(w http.ResponseWriter, r *http.Request) {
	run, ok := a.run(w, r)
	if !ok {
		return
	}

	rng, err := a.parseRange(r, false)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	var width int
	if v := r.URL.Query().Get("width"); v != "" {
		if width, err = strconv.Atoi(v); err != nil || width < 0 {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, errors.New("invalid width").WithTag("width", v))
			return
		}
	}

	img, err := render.Snapshot(run, render.Options{
		Range: rng,
		Width: width,
	})
	if errors.IsType(err, render.ErrTypeTooLarge) {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if err := render.EncodePNG(w, img); err != nil {
		logs.WithTag("run_id", r.PathValue("id")).
			Warn(errors.New("writing png failed").Wrap(err))
	}
}

func (a *RunAPI) run(w http.ResponseWriter, r *http.Request) (*models.Run, bool) {
	id := r.PathValue("id")

	run, ok := a.Runs.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeRunNotFound, errors.New("run not found").WithTag("run_id", id))
		return nil, false
	}
	return run, true
}

// parseRange reads the query range from the request URL. The range is either
// centered on x and y with a side of size, or explicit with w and h. When the
// range is not required, a request without x and y has no range.
func (a *RunAPI) parseRange(r *http.Request, required bool) (*quadtree.Rectangle, error) {
	q := r.URL.Query()
	if !required && q.Get("x") == "" && q.Get("y") == "" {
		return nil, nil
	}

	x, err := parseFloat(q.Get("x"), "x")
	if err != nil {
		return nil, err
	}
	y, err := parseFloat(q.Get("y"), "y")
	if err != nil {
		return nil, err
	}

	if q.Has("w") || q.Has("h") {
		w, err := parseFloat(q.Get("w"), "w")
		if err != nil {
			return nil, err
		}
		h, err := parseFloat(q.Get("h"), "h")
		if err != nil {
			return nil, err
		}

		rng := quadtree.Rectangle{X: x, Y: y, W: w, H: h}
		if !rng.Valid() {
			return nil, errors.New("invalid range").WithTag("range", rng.String())
		}
		return &rng, nil
	}

	size := a.QueryRangeSize
	if size == 0 {
		size = DefaultQueryRangeSize
	}
	if v := q.Get("size"); v != "" {
		if size, err = parseFloat(v, "size"); err != nil {
			return nil, err
		}
	}

	rng := quadtree.NewRectangleAround(quadtree.Point{X: x, Y: y}, size, size)
	if !rng.Valid() {
		return nil, errors.New("invalid range").WithTag("range", rng.String())
	}
	return &rng, nil
}

func parseFloat(v, name string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("invalid query parameter").
			WithTag("name", name).
			WithTag("value", v)
	}
	return f, nil
}

func writeBuildError(w http.ResponseWriter, err error) {
	switch {
	case errors.IsType(err, quadtree.ErrTypeInvalidConfiguration):
		writeError(w, http.StatusBadRequest, quadtree.ErrTypeInvalidConfiguration, err)

	case errors.IsType(err, simulation.ErrTypeTooManyPoints):
		writeError(w, http.StatusBadRequest, simulation.ErrTypeTooManyPoints, err)

	default:
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, err)
	}
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	entry := logs.WithTag("status", status).WithTag("code", code)
	if status >= http.StatusInternalServerError {
		entry.Error(err)
	} else {
		entry.Debug(err)
	}

	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logs.WithTag("status", status).
			Error(errors.New("encoding response failed").Wrap(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}
