package validate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/supportchat/pkg/widget/eventbus"
)

type recorder struct {
	failed  []string
	hostile []string
}

func newRecordingBus(t *testing.T) (*eventbus.Bus, *recorder) {
	t.Helper()
	b := eventbus.New()
	r := &recorder{}
	require.NoError(t, eventbus.Handle(b, func(e eventbus.FormValidationFailedEvent) error {
		r.failed = append(r.failed, e.Field)
		return nil
	}))
	require.NoError(t, eventbus.Handle(b, func(e eventbus.HackingAttemptedEvent) error {
		r.hostile = append(r.hostile, e.Field)
		return nil
	}))
	return b, r
}

func TestInvalidEmailFails(t *testing.T) {
	b, r := newRecordingBus(t)
	res := New(b).Validate([]*Field{{Name: "email", Value: "not-an-email"}})

	require.True(t, res.Fails)
	require.Equal(t, []string{"email"}, r.failed)
	require.Empty(t, r.hostile)
}

func TestValidEmailPasses(t *testing.T) {
	b, r := newRecordingBus(t)
	res := New(b).Validate([]*Field{{Name: "email", Value: "a@b.com"}})

	require.False(t, res.Fails)
	require.Empty(t, r.failed)
	require.Empty(t, r.hostile)
}

func TestScriptIsStrippedAndReportedOnce(t *testing.T) {
	b, r := newRecordingBus(t)
	f := &Field{Name: "name", Value: "<script>evil()</script>hello"}
	res := New(b).Validate([]*Field{f})

	require.Equal(t, "hello", f.Value)
	require.False(t, res.Fails)
	require.Equal(t, []string{"name"}, r.hostile)
	require.Equal(t, []string{"name"}, res.Hostile)
}

func TestHostileAndEmptyEmitsBoth(t *testing.T) {
	b, r := newRecordingBus(t)
	f := &Field{Name: "name", Value: "  <script>alert(1)</script>  "}
	res := New(b).Validate([]*Field{f})

	require.True(t, res.Fails)
	require.Equal(t, "", f.Value)
	require.Equal(t, []string{"name"}, r.failed)
	require.Equal(t, []string{"name"}, r.hostile)
}

func TestEveryFailingFieldIsReported(t *testing.T) {
	b, r := newRecordingBus(t)
	fields := []*Field{
		{Name: "name", Value: "   "},
		{Name: "contact", Kind: KindEmail, Value: "sam@"},
		{Name: "nickname", Value: "sam"},
	}
	res := New(b).Validate(fields)

	require.True(t, res.Fails)
	require.Equal(t, []string{"name", "contact"}, res.Failed)
	require.Equal(t, []string{"name", "contact"}, r.failed)
}

func TestValidateWithoutEmitterNeverPanics(t *testing.T) {
	res := New(nil).Validate([]*Field{nil, {Name: "email", Value: "x"}})
	require.True(t, res.Fails)

	// A bus with no handlers must not make Validate fail loudly either.
	res = New(eventbus.New()).Validate([]*Field{{Name: "name", Value: "<iframe src=x></iframe>"}})
	require.True(t, res.Fails)
	require.Equal(t, []string{"name"}, res.Hostile)
}

func TestSanitize(t *testing.T) {
	cases := []struct {
		in      string
		out     string
		hostile bool
	}{
		{in: "hello", out: "hello"},
		{in: "  Sam  ", out: "Sam"},
		{in: "O'Brien & Sons", out: "O'Brien & Sons"},
		{in: "<b>bold</b>", out: "bold"},
		{in: `<img src=x onerror="alert(1)">hi`, out: "hi", hostile: true},
		{in: `<a href="javascript:alert(1)">link</a>`, out: "link", hostile: true},
		{in: "&lt;script&gt;alert(1)&lt;/script&gt;ok", out: "ok", hostile: true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			out, hostile := Sanitize(tc.in)
			require.Equal(t, tc.out, out)
			require.Equal(t, tc.hostile, hostile)
		})
	}
}

func TestIsEmail(t *testing.T) {
	require.True(t, IsEmail("sam@x.com"))
	require.True(t, IsEmail("first.last+tag@mail.example.org"))
	require.False(t, IsEmail("sam@x"))
	require.False(t, IsEmail("sam x@y.com"))
	require.False(t, IsEmail("@y.com"))
}
