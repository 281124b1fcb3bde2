package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monigenomi/openpgx/internal/domain"
	"github.com/monigenomi/openpgx/internal/repository"
	"github.com/monigenomi/openpgx/internal/service"
)

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }

func testSnapshot() map[domain.Source]*domain.SourceSnapshot {
	strong := domain.StrengthStrong
	return map[domain.Source]*domain.SourceSnapshot{
		domain.SourceCPIC: {
			Recommendations: map[string][]*domain.Recommendation{
				"abacavir": {
					{
						Factors:        map[string]domain.Factor{"HLA-B*57:01": domain.Categorical("positive")},
						Recommendation: "Abacavir is not recommended",
						Strength:       &strong,
						Guideline:      "https://cpicpgx.org/guidelines/guideline-for-abacavir-and-hla-b/",
					},
				},
			},
			Encodings: map[string]map[string]domain.EncodingValues{
				"HLA-B*57:01": {
					"positive": {Label: strPtr("positive")},
					"negative": {Label: strPtr("negative")},
				},
				"CYP2D6": {
					"*7/*7": {Label: strPtr("Poor Metabolizer"), ActivityScore: floatPtr(0.0)},
				},
			},
		},
	}
}

// newTestServer wires a server over a file-backed snapshot in a temp dir
// and returns it with the store path for reload tests.
func newTestServer(t *testing.T) (*Server, *repository.FileStore, string) {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	path := filepath.Join(t.TempDir(), "recommendations.json")
	store := repository.NewFileStore(path, logger)
	require.NoError(t, store.Save(context.Background(), testSnapshot()))

	db, err := store.Load(context.Background())
	require.NoError(t, err)

	core := service.NewRecommendationService(db, logger)
	engine, err := service.NewCachedEngine(core, service.CacheOptions{LocalSize: 8}, logger)
	require.NoError(t, err)

	cfg := &domain.Config{
		Server: domain.ServerConfig{
			Host:      "127.0.0.1",
			Port:      0,
			RateLimit: 1000,
			RateBurst: 1000,
		},
		Logging: domain.LoggingConfig{Level: "warn"},
	}

	return NewServer(cfg, core, engine, store, logger), store, path
}

func doJSON(t *testing.T, server *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestDrugsEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/drugs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Drugs []string `json:"drugs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"abacavir"}, body.Drugs)
}

func TestSourcesEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/sources", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Sources []string `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"cpic"}, body.Sources)
}

func TestRecommendationsEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/recommendations", map[string]any{
		"genotypes": map[string]string{"HLA-B*57:01": "positive"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Recommendations map[string]map[string]*domain.Recommendation `json:"recommendations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	abacavir := body.Recommendations["abacavir"]
	require.NotNil(t, abacavir["cpic"])
	assert.Equal(t, "Abacavir is not recommended", abacavir["cpic"].Recommendation)
}

func TestRecommendationsEndpoint_BadBody(t *testing.T) {
	server, _, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/recommendations", map[string]any{
		"wrong_field": true,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var apiErr domain.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, domain.ErrCodeInvalidInput, apiErr.Code)
}

func TestPhenotypeEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/phenotype", map[string]any{
		"genotypes": map[string]string{"CYP2D6": "*7/*7"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Factors map[string]domain.GeneFactor `json:"factors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	gf := body.Factors["CYP2D6"]
	require.NotNil(t, gf.CPICFactor)
	assert.Equal(t, "Poor Metabolizer", *gf.CPICFactor)
	require.NotNil(t, gf.ActivityScore)
	assert.Equal(t, 0.0, *gf.ActivityScore)
}

func TestReloadEndpoint(t *testing.T) {
	server, store, _ := newTestServer(t)

	// Grow the snapshot on disk, then reload through the API.
	snapshot := testSnapshot()
	snapshot[domain.SourceCPIC].Recommendations["codeine"] = []*domain.Recommendation{
		{Recommendation: "Avoid codeine use", Guideline: "https://cpicpgx.org"},
	}
	require.NoError(t, store.Save(context.Background(), snapshot))

	rec := doJSON(t, server, http.MethodPost, "/api/v1/reload", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	drugsRec := doJSON(t, server, http.MethodGet, "/api/v1/drugs", nil)
	var body struct {
		Drugs []string `json:"drugs"`
	}
	require.NoError(t, json.Unmarshal(drugsRec.Body.Bytes(), &body))
	assert.Equal(t, []string{"abacavir", "codeine"}, body.Drugs)
}

func TestCorrelationIDHeader(t *testing.T) {
	server, _, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/health", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}
