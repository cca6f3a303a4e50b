package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/social-feed/pkg/feederr"
)

type stubRelSvc struct {
	err error
}

func (s stubRelSvc) ListFollowing(context.Context, string, int, int) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []string{"bob"}, nil
}

func (s stubRelSvc) ListFans(context.Context, string, int, int) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []string{"alice"}, nil
}

func (s stubRelSvc) IsFollowing(context.Context, string, string) (bool, error) {
	return false, s.err
}

func relationRouter(svc stubRelSvc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(nil, svc, nil, nil, 20)
	r := gin.New()
	r.GET("/relations/:user_id/following", h.ListFollowing)
	r.GET("/relations/:user_id/fans", h.ListFans)
	return r
}

func TestListFollowingMapsErrorTaxonomy(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"timeout", feederr.Timeout("list following", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"not found", feederr.NotFound("user"), http.StatusNotFound},
		{"ok", nil, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := relationRouter(stubRelSvc{err: tc.err})
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/relations/alice/following", nil)
			r.ServeHTTP(w, req)
			require.Equal(t, tc.code, w.Code)
		})
	}
}

func TestListFansMapsTimeout(t *testing.T) {
	r := relationRouter(stubRelSvc{err: feederr.Timeout("list fans", context.DeadlineExceeded)})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/relations/alice/fans", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusGatewayTimeout, w.Code)
}
