package subscription

import (
	"testing"
	"time"

	"github.com/pulsewire/pulsewire-go/pkg/event"
)

func TestStatusString(t *testing.T) {
	cases := map[Status]string{
		StatusActive:    "ACTIVE",
		StatusPaused:    "PAUSED",
		StatusCancelled: "CANCELLED",
		StatusExpired:   "EXPIRED",
		Status(99):      "UNKNOWN",
	}
	for status, want := range cases {
		if got := status.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", status, got, want)
		}
	}
}

func TestFilterMatch(t *testing.T) {
	ev := event.New(event.KindResourceChange, "", map[string]any{
		"resourceUri":  "mcp://files/report.txt",
		"resourceType": "file",
		"labels": map[string]any{
			"env": "prod",
		},
	})

	tests := []struct {
		name   string
		filter *Filter
		want   bool
	}{
		{"nil filter", nil, true},
		{"empty filter", &Filter{}, true},
		{"uri match", &Filter{ResourceURIs: []string{"mcp://files/report.txt"}}, true},
		{"uri mismatch", &Filter{ResourceURIs: []string{"mcp://files/other.txt"}}, false},
		{"type match", &Filter{ResourceTypes: []string{"file", "dir"}}, true},
		{"type mismatch", &Filter{ResourceTypes: []string{"dir"}}, false},
		{"all dimensions match", &Filter{
			ResourceURIs:  []string{"mcp://files/report.txt"},
			ResourceTypes: []string{"file"},
		}, true},
		{"one dimension fails", &Filter{
			ResourceURIs:  []string{"mcp://files/report.txt"},
			ResourceTypes: []string{"dir"},
		}, false},
		{"nested metadata match", &Filter{Metadata: map[string]string{"labels.env": "prod"}}, true},
		{"nested metadata mismatch", &Filter{Metadata: map[string]string{"labels.env": "dev"}}, false},
		{"metadata missing path", &Filter{Metadata: map[string]string{"labels.region": "eu"}}, false},
		{"tool name on non-tool event", &Filter{ToolNames: []string{"search"}}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.filter.Match(ev); got != tc.want {
				t.Errorf("Match = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFilterEmpty(t *testing.T) {
	var f *Filter
	if !f.Empty() {
		t.Error("nil filter should be empty")
	}
	if !(&Filter{}).Empty() {
		t.Error("zero filter should be empty")
	}
	if (&Filter{EventTypes: []string{"created"}}).Empty() {
		t.Error("filter with a dimension should not be empty")
	}
}

func TestCreateAndGet(t *testing.T) {
	st := NewStore(DefaultConfig())

	sub, err := st.Create("c1", event.KindToolExecution, nil, "", 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sub.ID == "" {
		t.Error("subscription should get a generated ID")
	}
	if sub.Status() != StatusActive {
		t.Errorf("new subscription status = %v, want Active", sub.Status())
	}
	if want := sub.CreatedAt.Add(DefaultTTL); !sub.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want CreatedAt+DefaultTTL", sub.ExpiresAt)
	}

	got, err := st.Get(sub.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != sub {
		t.Error("Get should return the stored record")
	}

	if _, err := st.Get("missing"); err != ErrNotFound {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
	if _, err := st.Create("c1", "", nil, "", 0); err != ErrInvalidKind {
		t.Errorf("Create with empty kind = %v, want ErrInvalidKind", err)
	}
}

func TestDuplicateCreatesAreIndependent(t *testing.T) {
	st := NewStore(DefaultConfig())
	filter := &Filter{EventTypes: []string{"created"}}

	a, err := st.Create("c1", event.KindResourceChange, filter, "", time.Hour)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	b, err := st.Create("c1", event.KindResourceChange, filter, "", time.Hour)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if a.ID == b.ID {
		t.Fatal("identical creates should yield distinct records")
	}
	if _, err := st.Cancel(a.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if b.Status() != StatusActive {
		t.Error("cancelling one duplicate should not affect the other")
	}
}

func TestPerClientCap(t *testing.T) {
	st := NewStore(Config{MaxPerClient: 2, DefaultTTL: time.Hour})

	for i := 0; i < 2; i++ {
		if _, err := st.Create("c1", event.KindCustom, nil, "", 0); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}
	if _, err := st.Create("c1", event.KindCustom, nil, "", 0); err != ErrResourceExhausted {
		t.Fatalf("Create over cap = %v, want ErrResourceExhausted", err)
	}

	// A different client has its own cap.
	if _, err := st.Create("c2", event.KindCustom, nil, "", 0); err != nil {
		t.Errorf("Create for second client: %v", err)
	}
}

func TestExpiredRecordsDoNotCountTowardCap(t *testing.T) {
	st := NewStore(Config{MaxPerClient: 1, DefaultTTL: time.Hour})

	// Negative TTL yields a record that is expired from the start but has
	// not yet been swept out of the indices.
	if _, err := st.Create("c1", event.KindCustom, nil, "", -time.Second); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := st.Create("c1", event.KindCustom, nil, "", time.Hour); err != nil {
		t.Errorf("Create after expired record = %v, want nil", err)
	}
}

func TestStateMachine(t *testing.T) {
	st := NewStore(DefaultConfig())
	sub, _ := st.Create("c1", event.KindCustom, nil, "", time.Hour)

	// Resume on an Active subscription is rejected.
	if ok, _ := st.Resume(sub.ID); ok {
		t.Error("Resume on Active should return false")
	}

	if ok, _ := st.Pause(sub.ID); !ok {
		t.Fatal("Pause on Active should succeed")
	}
	if sub.Status() != StatusPaused {
		t.Errorf("status = %v, want Paused", sub.Status())
	}

	// Pause is not idempotent at the transition level.
	if ok, _ := st.Pause(sub.ID); ok {
		t.Error("Pause on Paused should return false")
	}

	if ok, _ := st.Resume(sub.ID); !ok {
		t.Fatal("Resume on Paused should succeed")
	}

	if ok, _ := st.Cancel(sub.ID); !ok {
		t.Fatal("Cancel on Active should succeed")
	}
	if sub.Status() != StatusCancelled {
		t.Errorf("status = %v, want Cancelled", sub.Status())
	}

	// Terminal is frozen.
	if ok, _ := st.Cancel(sub.ID); ok {
		t.Error("Cancel on Cancelled should return false")
	}
	if ok, _ := st.Pause(sub.ID); ok {
		t.Error("Pause on Cancelled should return false")
	}
	if ok, _ := st.Resume(sub.ID); ok {
		t.Error("Resume on Cancelled should return false")
	}
}

func TestCancelUnindexesButRetains(t *testing.T) {
	st := NewStore(DefaultConfig())
	sub, _ := st.Create("c1", event.KindTaskUpdate, nil, "", time.Hour)

	st.Cancel(sub.ID)

	if len(st.ByClient("c1")) != 0 {
		t.Error("cancelled subscription should leave the client index")
	}
	if len(st.ByKind(event.KindTaskUpdate)) != 0 {
		t.Error("cancelled subscription should leave the kind index")
	}
	if _, err := st.Get(sub.ID); err != nil {
		t.Errorf("cancelled record should stay retrievable, got %v", err)
	}
}

func TestMatchesRequiresActiveAndUnexpired(t *testing.T) {
	st := NewStore(DefaultConfig())
	ev := event.New(event.KindResourceChange, "", nil)

	sub, _ := st.Create("c1", event.KindResourceChange, nil, "", time.Hour)
	if !sub.Matches(ev) {
		t.Error("active subscription of matching kind should match")
	}

	st.Pause(sub.ID)
	if sub.Matches(ev) {
		t.Error("paused subscription should not match")
	}
	st.Resume(sub.ID)

	other := event.New(event.KindToolExecution, "", nil)
	if sub.Matches(other) {
		t.Error("kind mismatch should not match")
	}

	inert, _ := st.Create("c1", event.KindResourceChange, nil, "", -time.Minute)
	if inert.Matches(ev) {
		t.Error("expired subscription should never match, even before sweep")
	}
}

func TestExpireDue(t *testing.T) {
	st := NewStore(DefaultConfig())

	due, _ := st.Create("c1", event.KindCustom, nil, "", time.Minute)
	fresh, _ := st.Create("c1", event.KindCustom, nil, "", time.Hour)

	expired := st.ExpireDue(time.Now().Add(30 * time.Minute))
	if len(expired) != 1 || expired[0] != due.ID {
		t.Fatalf("ExpireDue = %v, want [%s]", expired, due.ID)
	}
	if due.Status() != StatusExpired {
		t.Errorf("status = %v, want Expired", due.Status())
	}
	if fresh.Status() != StatusActive {
		t.Errorf("fresh subscription status = %v, want Active", fresh.Status())
	}
	if st.Count() != 1 {
		t.Errorf("Count = %d, want 1", st.Count())
	}

	// Idempotent.
	if again := st.ExpireDue(time.Now().Add(30 * time.Minute)); len(again) != 0 {
		t.Errorf("second ExpireDue = %v, want none", again)
	}
}

func TestDeliveryBookkeeping(t *testing.T) {
	st := NewStore(DefaultConfig())
	sub, _ := st.Create("c1", event.KindCustom, nil, "", time.Hour)

	at := time.Now()
	sub.RecordNotification(at)
	sub.RecordNotification(at.Add(time.Second))
	sub.RecordError()

	if sub.NotificationCount() != 2 {
		t.Errorf("NotificationCount = %d, want 2", sub.NotificationCount())
	}
	if sub.ErrorCount() != 1 {
		t.Errorf("ErrorCount = %d, want 1", sub.ErrorCount())
	}
	if !sub.LastNotifiedAt().Equal(at.Add(time.Second)) {
		t.Errorf("LastNotifiedAt = %v, want %v", sub.LastNotifiedAt(), at.Add(time.Second))
	}

	info := sub.Info()
	if info.NotificationCount != 2 || info.ErrorCount != 1 || info.Status != "ACTIVE" {
		t.Errorf("Info = %+v, want counts 2/1 and status ACTIVE", info)
	}
}

func TestCountsByKindAndClient(t *testing.T) {
	st := NewStore(DefaultConfig())
	st.Create("c1", event.KindResourceChange, nil, "", time.Hour)
	st.Create("c1", event.KindToolExecution, nil, "", time.Hour)
	st.Create("c2", event.KindResourceChange, nil, "", time.Hour)

	byKind := st.CountsByKind()
	if byKind[event.KindResourceChange] != 2 || byKind[event.KindToolExecution] != 1 {
		t.Errorf("CountsByKind = %v", byKind)
	}
	byClient := st.CountsByClient()
	if byClient["c1"] != 2 || byClient["c2"] != 1 {
		t.Errorf("CountsByClient = %v", byClient)
	}
}
