package sanitize

import (
	"strings"
	"testing"
)

func TestHTML_StripsScript(t *testing.T) {
	in := `<p>Hello</p><script>alert("x")</script><p>World</p>`
	got := HTML(in)
	if got != "<p>Hello</p><p>World</p>" {
		t.Errorf("got %q", got)
	}
}

func TestHTML_StripsScriptCaseInsensitive(t *testing.T) {
	in := `<p>ok</p><SCRIPT type="text/javascript">evil()</SCRIPT>`
	got := HTML(in)
	if strings.Contains(strings.ToLower(got), "script") {
		t.Errorf("script survived: %q", got)
	}
}

func TestHTML_StripsMultilineScript(t *testing.T) {
	in := "<div>\n<script>\nvar a = 1;\nalert(a);\n</script>\n</div>"
	got := HTML(in)
	if strings.Contains(got, "alert") {
		t.Errorf("script body survived: %q", got)
	}
	if !strings.Contains(got, "<div>") {
		t.Errorf("surrounding markup lost: %q", got)
	}
}

func TestHTML_StripsIframe(t *testing.T) {
	in := `before<iframe src="https://evil.example"></iframe>after`
	got := HTML(in)
	if got != "beforeafter" {
		t.Errorf("got %q", got)
	}
}

func TestHTML_StripsMultipleBlocks(t *testing.T) {
	in := `<script>a()</script><p>keep</p><script>b()</script><iframe src="x"></iframe>`
	got := HTML(in)
	if got != "<p>keep</p>" {
		t.Errorf("got %q", got)
	}
}

func TestHTML_CleanInputUnchanged(t *testing.T) {
	in := `<h1>Title</h1><p>Body with <a href="https://example.com">link</a></p>`
	if got := HTML(in); got != in {
		t.Errorf("clean input modified: %q", got)
	}
}

func TestHTML_Idempotent(t *testing.T) {
	in := `<p>x</p><script>a()</script>`
	once := HTML(in)
	twice := HTML(once)
	if once != twice {
		t.Errorf("not idempotent: %q vs %q", once, twice)
	}
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"strips tags",
			"<p>Hello <b>World</b></p>",
			"Hello World",
		},
		{
			"decodes entities",
			"a&nbsp;&lt;tag&gt;&nbsp;&amp;&nbsp;b",
			"a <tag> & b",
		},
		{
			"collapses whitespace",
			"<p>one</p>\n\n  <p>two</p>",
			"one two",
		},
		{
			"trims",
			"  <p> padded </p>  ",
			"padded",
		},
		{
			"empty",
			"",
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlainText(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
