package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveUpstream_Login(t *testing.T) {
	ok := testutil.ToFloat64(LoginAttempts.WithLabelValues("success"))
	bad := testutil.ToFloat64(LoginAttempts.WithLabelValues("failure"))

	ObserveUpstream("login", 200, nil, 10*time.Millisecond)
	ObserveUpstream("login", 403, nil, 10*time.Millisecond)
	ObserveUpstream("login", 0, errors.New("dial tcp: refused"), time.Millisecond)

	if got := testutil.ToFloat64(LoginAttempts.WithLabelValues("success")) - ok; got != 1 {
		t.Errorf("success delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(LoginAttempts.WithLabelValues("failure")) - bad; got != 2 {
		t.Errorf("failure delta = %v, want 2", got)
	}
}

func TestObserveUpstream_NonLogin(t *testing.T) {
	before := testutil.ToFloat64(LoginAttempts.WithLabelValues("success"))
	ObserveUpstream("post", 200, nil, time.Millisecond)
	ObserveUpstream("get", 0, errors.New("timeout"), time.Millisecond)
	if testutil.ToFloat64(LoginAttempts.WithLabelValues("success")) != before {
		t.Error("non-login ops must not count as login attempts")
	}
	if testutil.CollectAndCount(UpstreamDuration) < 2 {
		t.Error("expected upstream duration series for post and get")
	}
}
