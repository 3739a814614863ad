package gitops

import (
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GoGitOps implements GitOps on top of go-git, operating directly on the
// plumbing rather than shelling out to the git binary — the same library
// the credential exchange and routing layers of this harness already
// depend on for its wire formats.
type GoGitOps struct {
	// AuthorName and AuthorEmail stamp the squash commit's author and
	// committer identity when non-empty; otherwise they fall back to the
	// fork tip commit's own identity.
	AuthorName  string
	AuthorEmail string
}

// NewGoGitOps returns a GoGitOps using the given default commit identity.
func NewGoGitOps(authorName, authorEmail string) *GoGitOps {
	return &GoGitOps{AuthorName: authorName, AuthorEmail: authorEmail}
}

func (g *GoGitOps) CurrentBranch(path string) (string, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return "", fmt.Errorf("gitops: open %s: %w", path, err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("gitops: read HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", fmt.Errorf("gitops: HEAD is detached, not on a branch")
	}
	return head.Name().Short(), nil
}

func (g *GoGitOps) CreateBranch(path, name string) error {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return fmt.Errorf("gitops: open %s: %w", path, err)
	}
	head, err := repo.Head()
	if err != nil {
		return fmt.Errorf("gitops: read HEAD: %w", err)
	}

	ref := plumbing.NewHashReference(branchRef(name), head.Hash())
	if err := repo.Storer.SetReference(ref); err != nil {
		return fmt.Errorf("gitops: create branch ref %s: %w", name, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("gitops: open worktree: %w", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Branch: branchRef(name)}); err != nil {
		return fmt.Errorf("gitops: checkout %s: %w", name, err)
	}
	return nil
}

// SquashMerge creates one new commit on base whose tree is exactly fork's
// tip tree and whose sole parent is base's tip commit, then fast-forwards
// base's ref to it and checks the worktree out onto base. This assumes fork
// branched from base and never diverged from it except by its own commits
// (true for every fork branch this harness creates — spec.md §3's "Fork
// branch" is always cut from the task's base branch), so fork's tree
// already contains base's content plus the agent's changes.
func (g *GoGitOps) SquashMerge(path, base, fork string) error {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return fmt.Errorf("gitops: open %s: %w", path, err)
	}

	baseRef, err := repo.Reference(branchRef(base), true)
	if err != nil {
		return fmt.Errorf("gitops: resolve base branch %s: %w", base, err)
	}
	forkRef, err := repo.Reference(branchRef(fork), true)
	if err != nil {
		return fmt.Errorf("gitops: resolve fork branch %s: %w", fork, err)
	}

	forkCommit, err := repo.CommitObject(forkRef.Hash())
	if err != nil {
		return fmt.Errorf("gitops: load fork tip commit: %w", err)
	}

	name, email, when := g.AuthorName, g.AuthorEmail, time.Time{}
	if name == "" {
		name = forkCommit.Author.Name
	}
	if email == "" {
		email = forkCommit.Author.Email
	}
	if when.IsZero() {
		when = forkCommit.Author.When
	}
	signature := object.Signature{Name: name, Email: email, When: when}

	squash := &object.Commit{
		Author:       signature,
		Committer:    signature,
		Message:      fmt.Sprintf("Squash merge %s into %s\n\n%s", fork, base, forkCommit.Message),
		TreeHash:     forkCommit.TreeHash,
		ParentHashes: []plumbing.Hash{baseRef.Hash()},
	}

	obj := repo.Storer.NewEncodedObject()
	if err := squash.Encode(obj); err != nil {
		return fmt.Errorf("gitops: encode squash commit: %w", err)
	}
	hash, err := repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return fmt.Errorf("gitops: store squash commit: %w", err)
	}

	newBaseRef := plumbing.NewHashReference(branchRef(base), hash)
	if err := repo.Storer.CheckAndSetReference(newBaseRef, baseRef); err != nil {
		return fmt.Errorf("gitops: fast-forward %s: %w", base, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("gitops: open worktree: %w", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Branch: branchRef(base), Force: true}); err != nil {
		return fmt.Errorf("gitops: checkout %s: %w", base, err)
	}
	return nil
}

var _ GitOps = (*GoGitOps)(nil)
