package resolver

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/koltyakov/flo/internal/domain"
)

func TestFileResolverReadsRelativePath(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "css"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "css", "site.css"), []byte("body{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := File{Root: root}.Resolve(context.Background(), filepath.Join("css", "site.css"))
	if err != nil {
		t.Fatal(err)
	}
	want := &domain.Resource{URL: "css/site.css", Contents: "body{}"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected record (-want +got):\n%s", diff)
	}
}

func TestFileResolverPropagatesReadErrors(t *testing.T) {
	t.Parallel()

	_, err := File{Root: t.TempDir()}.Resolve(context.Background(), "missing.js")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
	var rerr *domain.ResourceError
	if !errors.As(err, &rerr) || rerr.Path != "missing.js" {
		t.Fatalf("expected ResourceError for missing.js, got %v", err)
	}
}

func TestFuncAdapter(t *testing.T) {
	t.Parallel()

	r := Func(func(_ context.Context, rel string) (*domain.Resource, error) {
		return &domain.Resource{URL: "/static/" + rel, Contents: "x"}, nil
	})
	got, err := r.Resolve(context.Background(), "a.js")
	if err != nil {
		t.Fatal(err)
	}
	if got.URL != "/static/a.js" {
		t.Fatalf("unexpected url %q", got.URL)
	}
}

func TestParseOutput(t *testing.T) {
	t.Parallel()

	got, err := parseOutput("a.js", []byte(`{"resourceURL":"/dist/a.js","contents":"built"}`))
	if err != nil {
		t.Fatal(err)
	}
	if got.URL != "/dist/a.js" || got.Contents != "built" {
		t.Fatalf("unexpected json record %+v", got)
	}

	got, err = parseOutput("a.js", []byte("console.log(1)\n"))
	if err != nil {
		t.Fatal(err)
	}
	if got.URL != "a.js" || got.Contents != "console.log(1)\n" {
		t.Fatalf("unexpected raw record %+v", got)
	}

	got, err = parseOutput("data.json", []byte(`{"name":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	if got.URL != "data.json" || got.Contents != `{"name":"x"}` {
		t.Fatalf("expected json without resourceURL to be raw contents, got %+v", got)
	}

	if _, err := parseOutput("a.js", []byte(`{"resourceURL":"/a.js"}`)); !errors.Is(err, domain.ErrInvalidResource) {
		t.Fatalf("expected ErrInvalidResource for missing contents, got %v", err)
	}
}

func TestCommandResolverRunsInRootWithPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	t.Parallel()

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.js"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := Command{Root: root, Cmd: `printf '{"resourceURL":"/%s","contents":"%s"}' "$FLO_PATH" "$(cat "$FLO_PATH")"`}
	got, err := r.Resolve(context.Background(), "a.js")
	if err != nil {
		t.Fatal(err)
	}
	want := &domain.Resource{URL: "/a.js", Contents: "x"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected record (-want +got):\n%s", diff)
	}
}

func TestCommandResolverFailsOnNonZeroExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	t.Parallel()

	_, err := Command{Root: t.TempDir(), Cmd: "echo broken >&2; exit 3"}.Resolve(context.Background(), "a.js")
	if err == nil {
		t.Fatal("expected error")
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected wrapped exit error, got %v", err)
	}
}

func TestNewPicksResolver(t *testing.T) {
	t.Parallel()

	if _, ok := New("/tmp", "").(File); !ok {
		t.Fatal("expected File resolver without command")
	}
	if _, ok := New("/tmp", "make").(Command); !ok {
		t.Fatal("expected Command resolver with command")
	}
}
