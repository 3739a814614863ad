package gitops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func initRepoWithCommit(t *testing.T, dir, filename, content, message string) *git.Repository {
	t.Helper()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := wt.Add(filename); err != nil {
		t.Fatalf("Add: %v", err)
	}
	sig := &object.Signature{Name: "tester", Email: "tester@example.com"}
	if _, err := wt.Commit(message, &git.CommitOptions{Author: sig, Committer: sig}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return repo
}

func TestGoGitOps_CurrentBranch(t *testing.T) {
	dir := t.TempDir()
	initRepoWithCommit(t, dir, "README.md", "hello\n", "initial commit")

	ops := NewGoGitOps("harness", "harness@example.com")
	branch, err := ops.CurrentBranch(dir)
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if branch != "master" {
		t.Errorf("CurrentBranch() = %q, want %q", branch, "master")
	}
}

func TestGoGitOps_CreateBranch(t *testing.T) {
	dir := t.TempDir()
	initRepoWithCommit(t, dir, "README.md", "hello\n", "initial commit")

	ops := NewGoGitOps("harness", "harness@example.com")
	if err := ops.CreateBranch(dir, "fork-branch"); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	branch, err := ops.CurrentBranch(dir)
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if branch != "fork-branch" {
		t.Errorf("CurrentBranch() after CreateBranch = %q, want %q", branch, "fork-branch")
	}
}

func TestGoGitOps_SquashMerge(t *testing.T) {
	dir := t.TempDir()
	repo := initRepoWithCommit(t, dir, "README.md", "hello\n", "initial commit")

	ops := NewGoGitOps("harness", "harness@example.com")
	if err := ops.CreateBranch(dir, "fork-branch"); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "feature.txt"), []byte("new feature\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := wt.Add("feature.txt"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	sig := &object.Signature{Name: "agent", Email: "agent@example.com"}
	if _, err := wt.Commit("add feature", &git.CommitOptions{Author: sig, Committer: sig}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := ops.SquashMerge(dir, "master", "fork-branch"); err != nil {
		t.Fatalf("SquashMerge: %v", err)
	}

	branch, err := ops.CurrentBranch(dir)
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if branch != "master" {
		t.Errorf("CurrentBranch() after SquashMerge = %q, want %q", branch, "master")
	}

	if _, err := os.Stat(filepath.Join(dir, "feature.txt")); err != nil {
		t.Errorf("expected feature.txt to exist on master after squash merge: %v", err)
	}

	head, err := repo.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		t.Fatalf("CommitObject: %v", err)
	}
	if len(commit.ParentHashes) != 1 {
		t.Errorf("squash commit has %d parents, want 1", len(commit.ParentHashes))
	}
}
