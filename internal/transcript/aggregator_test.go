package transcript_test

import (
	"testing"

	"github.com/lumastream/lumastream/internal/transcript"
)

func messagesEqual(t *testing.T, got, want []transcript.Message) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestAggregator_MergesSameRoleFragments(t *testing.T) {
	t.Parallel()

	agg := transcript.New()
	agg.AddFragment(transcript.RoleUser, "Hel")
	agg.AddFragment(transcript.RoleUser, "lo ")
	agg.AddFragment(transcript.RoleUser, "world")

	messagesEqual(t, agg.Messages(), []transcript.Message{
		{Role: transcript.RoleUser, Text: "Hello world"},
	})
}

func TestAggregator_RoleSwitchStartsNewMessage(t *testing.T) {
	t.Parallel()

	agg := transcript.New()
	agg.AddFragment(transcript.RoleUser, "What ")
	agg.AddFragment(transcript.RoleUser, "time is it?")
	agg.AddFragment(transcript.RoleAgent, "It is ")
	agg.AddFragment(transcript.RoleAgent, "noon.")

	messagesEqual(t, agg.Messages(), []transcript.Message{
		{Role: transcript.RoleUser, Text: "What time is it?"},
		{Role: transcript.RoleAgent, Text: "It is noon."},
	})
}

// A role whose message was interrupted by the other role must start a new
// message rather than reopen the old one.
func TestAggregator_InterleavedRolesStaySeparate(t *testing.T) {
	t.Parallel()

	agg := transcript.New()
	agg.AddFragment(transcript.RoleUser, "first")
	agg.AddFragment(transcript.RoleAgent, "reply")
	agg.AddFragment(transcript.RoleUser, "second")
	agg.AddFragment(transcript.RoleUser, " part")

	messagesEqual(t, agg.Messages(), []transcript.Message{
		{Role: transcript.RoleUser, Text: "first"},
		{Role: transcript.RoleAgent, Text: "reply"},
		{Role: transcript.RoleUser, Text: "second part"},
	})
}

func TestAggregator_TurnCompleteSealsTrailingMessage(t *testing.T) {
	t.Parallel()

	agg := transcript.New()
	agg.AddFragment(transcript.RoleUser, "Hel")
	agg.AddFragment(transcript.RoleUser, "lo")
	agg.CompleteTurn()
	agg.AddFragment(transcript.RoleUser, "Hi")

	messagesEqual(t, agg.Messages(), []transcript.Message{
		{Role: transcript.RoleUser, Text: "Hello"},
		{Role: transcript.RoleUser, Text: "Hi"},
	})
}

func TestAggregator_TurnCompleteSealsBothRoles(t *testing.T) {
	t.Parallel()

	agg := transcript.New()
	agg.AddFragment(transcript.RoleUser, "question")
	agg.AddFragment(transcript.RoleAgent, "answer")
	agg.CompleteTurn()
	agg.AddFragment(transcript.RoleAgent, "follow-up")
	agg.AddFragment(transcript.RoleAgent, " detail")

	messagesEqual(t, agg.Messages(), []transcript.Message{
		{Role: transcript.RoleUser, Text: "question"},
		{Role: transcript.RoleAgent, Text: "answer"},
		{Role: transcript.RoleAgent, Text: "follow-up detail"},
	})
}

func TestAggregator_CompleteTurnOnEmptyTranscript(t *testing.T) {
	t.Parallel()

	agg := transcript.New()
	agg.CompleteTurn()
	agg.AddFragment(transcript.RoleAgent, "hello")

	messagesEqual(t, agg.Messages(), []transcript.Message{
		{Role: transcript.RoleAgent, Text: "hello"},
	})
}

func TestAggregator_MessagesReturnsSnapshot(t *testing.T) {
	t.Parallel()

	agg := transcript.New()
	agg.AddFragment(transcript.RoleUser, "one")
	snap := agg.Messages()
	agg.AddFragment(transcript.RoleUser, " two")

	messagesEqual(t, snap, []transcript.Message{
		{Role: transcript.RoleUser, Text: "one"},
	})
	messagesEqual(t, agg.Messages(), []transcript.Message{
		{Role: transcript.RoleUser, Text: "one two"},
	})
}

func TestAggregator_Reset(t *testing.T) {
	t.Parallel()

	agg := transcript.New()
	agg.AddFragment(transcript.RoleUser, "old")
	agg.Reset()

	if got := agg.Messages(); len(got) != 0 {
		t.Fatalf("after Reset got %v, want empty", got)
	}
	agg.AddFragment(transcript.RoleUser, "new")
	messagesEqual(t, agg.Messages(), []transcript.Message{
		{Role: transcript.RoleUser, Text: "new"},
	})
}
