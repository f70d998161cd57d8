package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"batchplane/pkg/api"
)

func TestPostForm_DecodesOutcomeRedirect(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if got := r.FormValue("type"); got != "code.index" {
			t.Errorf("form type = %q", got)
		}
		http.Redirect(w, r, "/?ok=true&info=Task+enqueued", http.StatusSeeOther)
	}))
	defer ts.Close()

	client := NewAdminClient(ts.URL + "/")
	outcome, err := client.PostForm("/tasks/enqueue", url.Values{"type": {"code.index"}})
	if err != nil {
		t.Fatalf("PostForm failed: %v", err)
	}
	if !outcome.OK || outcome.Info != "Task enqueued" {
		t.Errorf("outcome = %+v", outcome)
	}
}

func TestPostForm_ErrorOutcome(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/?ok=false&error=Unknown+type%3A+ghost", http.StatusSeeOther)
	}))
	defer ts.Close()

	client := NewAdminClient(ts.URL)
	outcome, err := client.PostForm("/tasks/enqueue", url.Values{"type": {"ghost"}})
	if err != nil {
		t.Fatalf("PostForm failed: %v", err)
	}
	if outcome.OK || outcome.Error != "Unknown type: ghost" {
		t.Errorf("outcome = %+v", outcome)
	}
}

func TestPostForm_UnexpectedStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	client := NewAdminClient(ts.URL)
	if _, err := client.PostForm("/tasks/enqueue", url.Values{}); err == nil {
		t.Error("expected error on non-redirect status")
	}
}

func TestOverview_Decodes(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(api.OverviewResponse{
			Runners: []string{"code.index"},
			Schedules: []api.ScheduleInfo{
				{ID: 1, Type: "code.index", Cron: "0 3 * * *", Enabled: true},
			},
		})
	}))
	defer ts.Close()

	client := NewAdminClient(ts.URL)
	overview, err := client.Overview()
	if err != nil {
		t.Fatalf("Overview failed: %v", err)
	}
	if len(overview.Runners) != 1 || len(overview.Schedules) != 1 {
		t.Errorf("overview = %+v", overview)
	}
}
