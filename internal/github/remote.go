package github

// RemoteCredential adapts a TokenManager to harness.RemoteGitCredential:
// the git proxy's ForwardToRemote path calls Token() on every request,
// which only hits the network when the cached installation token is
// missing or within its refresh buffer of expiring.
type RemoteCredential struct {
	manager   *TokenManager
	remoteURL string
}

// NewRemoteCredential builds a RemoteCredential forwarding to remoteURL
// (the repository's git HTTP URL) using manager's installation tokens.
func NewRemoteCredential(manager *TokenManager, remoteURL string) *RemoteCredential {
	return &RemoteCredential{manager: manager, remoteURL: remoteURL}
}

// RemoteURL returns the upstream git HTTP URL requests are forwarded to.
func (c *RemoteCredential) RemoteURL() string { return c.remoteURL }

// Token returns a valid installation token, refreshing opportunistically
// within TokenRefreshBuffer of expiry.
func (c *RemoteCredential) Token() (string, error) {
	return c.manager.Token()
}
