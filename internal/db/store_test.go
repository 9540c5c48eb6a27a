package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/hpungsan/salon/internal/capsule"
	"github.com/hpungsan/salon/internal/discussion"
	"github.com/hpungsan/salon/internal/errors"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func newTestTopic(id string, created int64) *discussion.Topic {
	return &discussion.Topic{
		ID:              id,
		Title:           "Topic " + id,
		Description:     "about " + id,
		Category:        "natural_science",
		MaxParticipants: 3,
		MaxRounds:       3,
		Phase:           discussion.PhaseSetup,
		CreatedAt:       created,
		UpdatedAt:       created,
	}
}

func newTestCapsule(id string, quality float64) *capsule.Capsule {
	return &capsule.Capsule{
		ID:           id,
		TopicID:      "topic-1",
		Title:        "Capsule " + id,
		Summary:      "summary",
		Insight:      "insight " + id,
		Evidence:     []string{"because the data shows <growth> & decline"},
		ActionItems:  []string{},
		Questions:    []string{},
		Dimensions:   capsule.Dimensions{Truth: 40, Goodness: 20},
		Confidence:   0.5,
		QualityScore: quality,
		Grade:        capsule.GradeFor(quality),
		SourceAgents: []string{"Alice"},
		Keywords:     []string{"banana,", "orchard"},
		Category:     "natural_science",
		Status:       capsule.StatusDraft,
	}
}

func TestTopicRoundTrip(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	topic := newTestTopic("t1", 100)
	if err := InsertTopic(ctx, database, topic); err != nil {
		t.Fatalf("InsertTopic failed: %v", err)
	}

	participants := []discussion.Participant{
		{ID: "p1", Name: "Alice", Domain: "physics", Expertise: []string{"optics"}, Role: discussion.RoleLector, Scores: capsule.Dimensions{Truth: 90}},
		{ID: "p2", Name: "Bob", Role: discussion.RoleCommentator},
	}
	if err := ReplaceParticipants(ctx, database, "t1", participants, "p1", 101); err != nil {
		t.Fatalf("ReplaceParticipants failed: %v", err)
	}

	got, err := GetTopic(ctx, database, "t1")
	if err != nil {
		t.Fatalf("GetTopic failed: %v", err)
	}
	if got.Title != "Topic t1" {
		t.Errorf("Title = %q, want %q", got.Title, "Topic t1")
	}
	if got.LectorID != "p1" {
		t.Errorf("LectorID = %q, want p1", got.LectorID)
	}
	if len(got.Participants) != 2 || got.Participants[0].Name != "Alice" || got.Participants[1].Name != "Bob" {
		t.Fatalf("Participants = %+v, want Alice then Bob", got.Participants)
	}
	if got.Participants[0].Scores.Truth != 90 {
		t.Errorf("Scores.Truth = %d, want 90", got.Participants[0].Scores.Truth)
	}
	if len(got.Participants[1].Expertise) != 0 {
		t.Errorf("Expertise = %v, want empty", got.Participants[1].Expertise)
	}
	if got.UpdatedAt != 101 {
		t.Errorf("UpdatedAt = %d, want 101", got.UpdatedAt)
	}
}

func TestGetTopic_NotFound(t *testing.T) {
	database := openTestDB(t)

	_, err := GetTopic(context.Background(), database, "missing")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("GetTopic error = %v, want NOT_FOUND", err)
	}
}

func TestListTopics_NewestFirstAndPhaseFilter(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if err := InsertTopic(ctx, database, newTestTopic(fmt.Sprintf("t%d", i), int64(i))); err != nil {
			t.Fatalf("InsertTopic failed: %v", err)
		}
	}
	if err := UpdateTopicPhase(ctx, database, "t2", discussion.PhaseIntroduction, 10); err != nil {
		t.Fatalf("UpdateTopicPhase failed: %v", err)
	}

	all, total, err := ListTopics(ctx, database, "", 10, 0)
	if err != nil {
		t.Fatalf("ListTopics failed: %v", err)
	}
	if total != 3 || len(all) != 3 {
		t.Fatalf("ListTopics = %d items (total %d), want 3", len(all), total)
	}
	if all[0].ID != "t3" || all[2].ID != "t1" {
		t.Errorf("order = %s,%s,%s, want t3,t2,t1", all[0].ID, all[1].ID, all[2].ID)
	}

	intro, total, err := ListTopics(ctx, database, discussion.PhaseIntroduction, 10, 0)
	if err != nil {
		t.Fatalf("ListTopics failed: %v", err)
	}
	if total != 1 || intro[0].ID != "t2" {
		t.Errorf("filtered = %+v (total %d), want only t2", intro, total)
	}

	page, _, err := ListTopics(ctx, database, "", 1, 1)
	if err != nil {
		t.Fatalf("ListTopics failed: %v", err)
	}
	if len(page) != 1 || page[0].ID != "t2" {
		t.Errorf("page = %+v, want t2", page)
	}
}

func TestDeleteTopic_CascadesButKeepsCapsules(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	if err := InsertTopic(ctx, database, newTestTopic("topic-1", 1)); err != nil {
		t.Fatalf("InsertTopic failed: %v", err)
	}
	if err := ReplaceParticipants(ctx, database, "topic-1", []discussion.Participant{{ID: "p1", Name: "Alice", Role: discussion.RoleLector}}, "p1", 2); err != nil {
		t.Fatalf("ReplaceParticipants failed: %v", err)
	}
	contrib := &discussion.Contribution{ID: "c1", TopicID: "topic-1", ContributorID: "p1", ContributorName: "Alice",
		Role: discussion.RoleLector, Round: 1, Phase: discussion.PhaseIntroduction, Text: "hello", CreatedAt: 3}
	if err := InsertContribution(ctx, database, contrib); err != nil {
		t.Fatalf("InsertContribution failed: %v", err)
	}
	if err := ReplaceInsights(ctx, database, "topic-1", []discussion.Insight{{ID: "i1", Text: "x", Type: discussion.InsightPattern, Confidence: 0.7}}); err != nil {
		t.Fatalf("ReplaceInsights failed: %v", err)
	}
	if err := UpsertCapsule(ctx, database, newTestCapsule("cap-1", 50)); err != nil {
		t.Fatalf("UpsertCapsule failed: %v", err)
	}

	if err := DeleteTopic(ctx, database, "topic-1"); err != nil {
		t.Fatalf("DeleteTopic failed: %v", err)
	}

	contribs, err := ListContributions(ctx, database, "topic-1")
	if err != nil {
		t.Fatalf("ListContributions failed: %v", err)
	}
	if len(contribs) != 0 {
		t.Errorf("contributions after delete = %d, want 0", len(contribs))
	}
	n, err := CountInsights(ctx, database, "topic-1")
	if err != nil {
		t.Fatalf("CountInsights failed: %v", err)
	}
	if n != 0 {
		t.Errorf("insights after delete = %d, want 0", n)
	}
	if _, err := GetCapsule(ctx, database, "cap-1"); err != nil {
		t.Errorf("capsule should survive topic deletion: %v", err)
	}

	if err := DeleteTopic(ctx, database, "topic-1"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("second DeleteTopic error = %v, want NOT_FOUND", err)
	}
}

func TestUpdateTopicRound_OnlyRaises(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	if err := InsertTopic(ctx, database, newTestTopic("t1", 1)); err != nil {
		t.Fatalf("InsertTopic failed: %v", err)
	}
	if err := UpdateTopicRound(ctx, database, "t1", 2, 5); err != nil {
		t.Fatalf("UpdateTopicRound failed: %v", err)
	}
	if err := UpdateTopicRound(ctx, database, "t1", 1, 6); err != nil {
		t.Fatalf("UpdateTopicRound failed: %v", err)
	}
	got, err := GetTopic(ctx, database, "t1")
	if err != nil {
		t.Fatalf("GetTopic failed: %v", err)
	}
	if got.CurrentRound != 2 {
		t.Errorf("CurrentRound = %d, want 2", got.CurrentRound)
	}
}

func TestContributions_PreserveOrder(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	if err := InsertTopic(ctx, database, newTestTopic("t1", 1)); err != nil {
		t.Fatalf("InsertTopic failed: %v", err)
	}
	// IDs deliberately sort opposite to insertion order.
	for i, id := range []string{"z", "m", "a"} {
		c := &discussion.Contribution{ID: id, TopicID: "t1", ContributorID: "p", ContributorName: "P",
			Role: discussion.RoleCommentator, Round: 1, Phase: discussion.PhaseDebate, Text: id,
			Scores: capsule.Dimensions{Beauty: i}, CreatedAt: 7}
		if err := InsertContribution(ctx, database, c); err != nil {
			t.Fatalf("InsertContribution failed: %v", err)
		}
	}

	got, err := ListContributions(ctx, database, "t1")
	if err != nil {
		t.Fatalf("ListContributions failed: %v", err)
	}
	if len(got) != 3 || got[0].ID != "z" || got[1].ID != "m" || got[2].ID != "a" {
		t.Fatalf("order = %+v, want z,m,a", got)
	}
	if got[2].Scores.Beauty != 2 || got[2].Phase != discussion.PhaseDebate {
		t.Errorf("last contribution = %+v", got[2])
	}
}

func TestReplaceInsights_Replaces(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	if err := InsertTopic(ctx, database, newTestTopic("t1", 1)); err != nil {
		t.Fatalf("InsertTopic failed: %v", err)
	}
	first := []discussion.Insight{
		{ID: "i1", Text: "a", SourceIDs: []string{"c1"}, Type: discussion.InsightPattern, Confidence: 0.7},
		{ID: "i2", Text: "b", Type: discussion.InsightQuestion, Confidence: 0.5},
	}
	if err := ReplaceInsights(ctx, database, "t1", first); err != nil {
		t.Fatalf("ReplaceInsights failed: %v", err)
	}
	if err := ReplaceInsights(ctx, database, "t1", first[:1]); err != nil {
		t.Fatalf("ReplaceInsights failed: %v", err)
	}

	got, err := ListInsights(ctx, database, "t1")
	if err != nil {
		t.Fatalf("ListInsights failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("insights = %d, want 1", len(got))
	}
	if got[0].TopicID != "t1" || got[0].SourceIDs[0] != "c1" || got[0].Type != discussion.InsightPattern {
		t.Errorf("insight = %+v", got[0])
	}
	if got[0].Confidence != 0.7 {
		t.Errorf("Confidence = %v, want 0.7", got[0].Confidence)
	}
}

func TestUpsertCapsule_RoundTrip(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	c := newTestCapsule("cap-1", 42.5)
	if err := UpsertCapsule(ctx, database, c); err != nil {
		t.Fatalf("UpsertCapsule failed: %v", err)
	}
	if c.Version != 1 {
		t.Errorf("Version = %d, want 1", c.Version)
	}
	if c.CreatedAt == 0 || c.UpdatedAt == 0 {
		t.Errorf("timestamps not stamped: %+v", c)
	}

	got, err := GetCapsule(ctx, database, "cap-1")
	if err != nil {
		t.Fatalf("GetCapsule failed: %v", err)
	}
	if got.Evidence[0] != "because the data shows <growth> & decline" {
		t.Errorf("Evidence = %q", got.Evidence[0])
	}
	if got.QualityScore != 42.5 || got.Grade != capsule.GradeC {
		t.Errorf("score = %v/%s, want 42.5/C", got.QualityScore, got.Grade)
	}
	if got.Dimensions.Truth != 40 || got.Dimensions.Goodness != 20 {
		t.Errorf("Dimensions = %+v", got.Dimensions)
	}
	if got.SourceContributions == nil || len(got.SourceContributions) != 0 {
		t.Errorf("SourceContributions = %#v, want empty slice", got.SourceContributions)
	}
}

func TestUpsertCapsule_KeepsCreatedAtAndVersion(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	c := newTestCapsule("cap-1", 10)
	c.CreatedAt = 1000
	if err := UpsertCapsule(ctx, database, c); err != nil {
		t.Fatalf("UpsertCapsule failed: %v", err)
	}
	if err := SetCapsuleVersion(ctx, database, "cap-1", 4); err != nil {
		t.Fatalf("SetCapsuleVersion failed: %v", err)
	}

	again := newTestCapsule("cap-1", 20)
	again.CreatedAt = 5000
	again.Version = 9
	again.Title = "Renamed"
	if err := UpsertCapsule(ctx, database, again); err != nil {
		t.Fatalf("UpsertCapsule failed: %v", err)
	}
	if again.CreatedAt != 1000 {
		t.Errorf("CreatedAt = %d, want 1000", again.CreatedAt)
	}
	if again.Version != 4 {
		t.Errorf("Version = %d, want 4", again.Version)
	}

	got, err := GetCapsule(ctx, database, "cap-1")
	if err != nil {
		t.Fatalf("GetCapsule failed: %v", err)
	}
	if got.Title != "Renamed" || got.QualityScore != 20 {
		t.Errorf("capsule = %+v, want renamed with quality 20", got)
	}
}

func TestGetCapsule_NotFound(t *testing.T) {
	database := openTestDB(t)

	_, err := GetCapsule(context.Background(), database, "nope")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("GetCapsule error = %v, want NOT_FOUND", err)
	}
}

func TestListCapsules_OrderAndFilters(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	low := newTestCapsule("low", 10)
	mid := newTestCapsule("mid", 50)
	mid.Status = capsule.StatusApproved
	high := newTestCapsule("high", 90)
	high.Category = "humanities"
	for _, c := range []*capsule.Capsule{low, mid, high} {
		if err := UpsertCapsule(ctx, database, c); err != nil {
			t.Fatalf("UpsertCapsule failed: %v", err)
		}
	}

	all, total, err := ListCapsules(ctx, database, ListFilter{Limit: 10})
	if err != nil {
		t.Fatalf("ListCapsules failed: %v", err)
	}
	if total != 3 || all[0].ID != "high" || all[1].ID != "mid" || all[2].ID != "low" {
		t.Fatalf("order = %v (total %d), want high,mid,low", ids(all), total)
	}

	cases := []struct {
		name   string
		filter ListFilter
		want   []string
	}{
		{"status", ListFilter{Status: capsule.StatusApproved, Limit: 10}, []string{"mid"}},
		{"category", ListFilter{Category: "humanities", Limit: 10}, []string{"high"}},
		{"min quality", ListFilter{MinQuality: 50, Limit: 10}, []string{"high", "mid"}},
		{"page", ListFilter{Limit: 1, Offset: 2}, []string{"low"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, _, err := ListCapsules(ctx, database, tc.filter)
			if err != nil {
				t.Fatalf("ListCapsules failed: %v", err)
			}
			if fmt.Sprint(ids(got)) != fmt.Sprint(tc.want) {
				t.Errorf("ids = %v, want %v", ids(got), tc.want)
			}
		})
	}
}

func TestSearchCapsules(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	a := newTestCapsule("a", 30)
	a.Title = "Photosynthesis in orchards"
	b := newTestCapsule("b", 80)
	b.Keywords = []string{"mangrove"}
	b.Questions = []string{"Why do mangroves tolerate salt?"}
	for _, c := range []*capsule.Capsule{a, b} {
		if err := UpsertCapsule(ctx, database, c); err != nil {
			t.Fatalf("UpsertCapsule failed: %v", err)
		}
	}

	cases := []struct {
		query string
		want  []string
	}{
		{"banana,", []string{"a"}},
		{"photosynthesis", []string{"a"}},
		{"mangroves salt", []string{"b"}},
		{"mangrove photosynthesis", []string{}},
		{"NEAR(", []string{}},
		{"---", []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			got, err := SearchCapsules(ctx, database, tc.query, 10)
			if err != nil {
				t.Fatalf("SearchCapsules(%q) failed: %v", tc.query, err)
			}
			if fmt.Sprint(ids(got)) != fmt.Sprint(tc.want) {
				t.Errorf("SearchCapsules(%q) = %v, want %v", tc.query, ids(got), tc.want)
			}
		})
	}

	// Both match through their evidence; rank order depends on text lengths.
	got, err := SearchCapsules(ctx, database, "growth", 10)
	if err != nil {
		t.Fatalf("SearchCapsules(growth) failed: %v", err)
	}
	found := ids(got)
	sort.Strings(found)
	if fmt.Sprint(found) != "[a b]" {
		t.Errorf("SearchCapsules(growth) = %v, want a and b", ids(got))
	}
}

func TestSearchCapsules_TitleOutranksEvidence(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	inTitle := newTestCapsule("title", 10)
	inTitle.Title = "Kelp forests"
	inEvidence := newTestCapsule("evidence", 90)
	inEvidence.Evidence = []string{"kelp forests"}
	for _, c := range []*capsule.Capsule{inEvidence, inTitle} {
		if err := UpsertCapsule(ctx, database, c); err != nil {
			t.Fatalf("UpsertCapsule failed: %v", err)
		}
	}

	got, err := SearchCapsules(ctx, database, "kelp", 10)
	if err != nil {
		t.Fatalf("SearchCapsules failed: %v", err)
	}
	if fmt.Sprint(ids(got)) != "[title evidence]" {
		t.Errorf("SearchCapsules(kelp) = %v, want [title evidence]", ids(got))
	}
}

func TestSearchCapsules_EqualRankByQuality(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	// Same shape of indexed text, so bm25 ties and quality decides.
	for _, c := range []*capsule.Capsule{newTestCapsule("lo", 20), newTestCapsule("hi", 90)} {
		if err := UpsertCapsule(ctx, database, c); err != nil {
			t.Fatalf("UpsertCapsule failed: %v", err)
		}
	}

	got, err := SearchCapsules(ctx, database, "growth", 10)
	if err != nil {
		t.Fatalf("SearchCapsules failed: %v", err)
	}
	if fmt.Sprint(ids(got)) != "[hi lo]" {
		t.Errorf("SearchCapsules(growth) = %v, want [hi lo]", ids(got))
	}
}

func TestSearchCapsules_ReindexesOnUpdate(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	c := newTestCapsule("a", 30)
	c.Title = "Tidal energy"
	if err := UpsertCapsule(ctx, database, c); err != nil {
		t.Fatalf("UpsertCapsule failed: %v", err)
	}
	c.Title = "Solar energy"
	if err := UpsertCapsule(ctx, database, c); err != nil {
		t.Fatalf("UpsertCapsule failed: %v", err)
	}

	if got, _ := SearchCapsules(ctx, database, "tidal", 10); len(got) != 0 {
		t.Errorf("stale title still indexed: %v", ids(got))
	}
	if got, _ := SearchCapsules(ctx, database, "solar", 10); len(got) != 1 {
		t.Errorf("new title not indexed: %v", ids(got))
	}
}

func TestMatchExpression(t *testing.T) {
	cases := map[string]string{
		"":                 "",
		"banana":           `"banana"`,
		`say "hi" now`:     `"say" """hi""" "now"`,
		"a -- b":           `"a" "b"`,
		"数据 energy":        `"数据" "energy"`,
		"  spaced   out  ": `"spaced" "out"`,
	}
	for in, want := range cases {
		if got := MatchExpression(in); got != want {
			t.Errorf("MatchExpression(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUpdateCapsuleStatus(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	if err := UpsertCapsule(ctx, database, newTestCapsule("a", 30)); err != nil {
		t.Fatalf("UpsertCapsule failed: %v", err)
	}
	if _, err := UpdateCapsuleStatus(ctx, database, "a", capsule.StatusReview); err != nil {
		t.Fatalf("UpdateCapsuleStatus failed: %v", err)
	}
	got, err := GetCapsule(ctx, database, "a")
	if err != nil {
		t.Fatalf("GetCapsule failed: %v", err)
	}
	if got.Status != capsule.StatusReview {
		t.Errorf("Status = %s, want review", got.Status)
	}
	if got.Version != 1 {
		t.Errorf("Version = %d, want 1", got.Version)
	}

	if _, err := UpdateCapsuleStatus(ctx, database, "missing", capsule.StatusReview); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("UpdateCapsuleStatus(missing) error = %v, want NOT_FOUND", err)
	}
}

func TestCapsuleStats(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	empty, err := CapsuleStats(ctx, database)
	if err != nil {
		t.Fatalf("CapsuleStats failed: %v", err)
	}
	if empty.Count != 0 || empty.AverageQuality != 0 {
		t.Errorf("empty stats = %+v", empty)
	}

	a := newTestCapsule("a", 10)
	b := newTestCapsule("b", 20.556)
	b.Category = "humanities"
	b.Status = capsule.StatusApproved
	for _, c := range []*capsule.Capsule{a, b} {
		if err := UpsertCapsule(ctx, database, c); err != nil {
			t.Fatalf("UpsertCapsule failed: %v", err)
		}
	}

	s, err := CapsuleStats(ctx, database)
	if err != nil {
		t.Fatalf("CapsuleStats failed: %v", err)
	}
	if s.Count != 2 {
		t.Errorf("Count = %d, want 2", s.Count)
	}
	if s.AverageQuality != 15.28 {
		t.Errorf("AverageQuality = %v, want 15.28", s.AverageQuality)
	}
	if s.ByCategory["natural_science"] != 1 || s.ByCategory["humanities"] != 1 {
		t.Errorf("ByCategory = %v", s.ByCategory)
	}
	if s.ByStatus["draft"] != 1 || s.ByStatus["approved"] != 1 {
		t.Errorf("ByStatus = %v", s.ByStatus)
	}
}

func TestInsertNextVersion_Sequential(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	c := newTestCapsule("a", 30)
	if err := UpsertCapsule(ctx, database, c); err != nil {
		t.Fatalf("UpsertCapsule failed: %v", err)
	}

	for want := 1; want <= 3; want++ {
		v := &capsule.Version{CapsuleID: "a", Changes: fmt.Sprintf("edit %d", want), Editor: "ed", EditedAt: int64(want), Snapshot: c.Snapshot()}
		got, err := InsertNextVersion(ctx, database, v)
		if err != nil {
			t.Fatalf("InsertNextVersion failed: %v", err)
		}
		if got != want {
			t.Errorf("version = %d, want %d", got, want)
		}
	}

	history, err := ListVersions(ctx, database, "a")
	if err != nil {
		t.Fatalf("ListVersions failed: %v", err)
	}
	if len(history) != 3 || history[0].Version != 3 || history[2].Version != 1 {
		t.Fatalf("history = %+v, want 3,2,1", history)
	}
	if history[0].Snapshot.Title != c.Title {
		t.Errorf("snapshot title = %q, want %q", history[0].Snapshot.Title, c.Title)
	}

	v2, err := GetVersion(ctx, database, "a", 2)
	if err != nil {
		t.Fatalf("GetVersion failed: %v", err)
	}
	if v2.Changes != "edit 2" {
		t.Errorf("Changes = %q, want %q", v2.Changes, "edit 2")
	}
	if _, err := GetVersion(ctx, database, "a", 99); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetVersion(99) error = %v, want NOT_FOUND", err)
	}
}

func TestInsertNextVersion_Concurrent(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	c := newTestCapsule("a", 30)
	if err := UpsertCapsule(ctx, database, c); err != nil {
		t.Fatalf("UpsertCapsule failed: %v", err)
	}

	const writers = 12
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := WithTx(ctx, database, func(tx *sql.Tx) error {
				v := &capsule.Version{CapsuleID: "a", Changes: "concurrent", Editor: fmt.Sprintf("w%d", i), EditedAt: time.Now().Unix(), Snapshot: c.Snapshot()}
				n, err := InsertNextVersion(ctx, tx, v)
				if err != nil {
					return err
				}
				return SetCapsuleVersion(ctx, tx, "a", n)
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent version failed: %v", err)
		}
	}

	history, err := ListVersions(ctx, database, "a")
	if err != nil {
		t.Fatalf("ListVersions failed: %v", err)
	}
	if len(history) != writers {
		t.Fatalf("history = %d rows, want %d", len(history), writers)
	}
	for i, v := range history {
		if want := writers - i; v.Version != want {
			t.Errorf("history[%d].Version = %d, want %d", i, v.Version, want)
		}
	}

	got, err := GetCapsule(ctx, database, "a")
	if err != nil {
		t.Fatalf("GetCapsule failed: %v", err)
	}
	if got.Version != writers {
		t.Errorf("live Version = %d, want %d", got.Version, writers)
	}
}

func ids(cs []capsule.Capsule) []string {
	out := []string{}
	for _, c := range cs {
		out = append(out, c.ID)
	}
	return out
}
