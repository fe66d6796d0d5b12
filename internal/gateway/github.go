// Package gateway provides gateways to the dashboard API and to the GitHub API,
// abstracting away the underlying REST and GraphQL clients.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
)

// ErrNoCloseActor is returned when GitHub has no record of who closed a PR.
var ErrNoCloseActor = errors.New("no close actor recorded on GitHub")

// ActorLookup defines the behavior of a gateway that can resolve close actors on GitHub.
type ActorLookup interface {
	SuggestCloseActor(ctx context.Context, repository string, number int) (string, error)
	UserExists(ctx context.Context, login string) (bool, error)
}

// GitHubGateway is the concrete implementation of the ActorLookup interface.
type GitHubGateway struct {
	restClient    *github.Client
	graphqlClient *githubv4.Client
	logger        *log.Logger
}

// closeActorQuery asks for the merger of a PR, and the actor of its last
// close event for PRs that were closed without merging.
type closeActorQuery struct {
	Repository struct {
		PullRequest struct {
			Merged   bool
			MergedBy struct {
				Login githubv4.String
			}
			TimelineItems struct {
				Nodes []struct {
					Typename    string `graphql:"__typename"`
					ClosedEvent struct {
						Actor struct {
							Login githubv4.String
						}
					} `graphql:"... on ClosedEvent"`
				}
			} `graphql:"timelineItems(itemTypes: [CLOSED_EVENT], last: 1)"`
		} `graphql:"pullRequest(number: $number)"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

// NewGitHubGateway is a constructor that creates a new instance of GitHubGateway.
func NewGitHubGateway(token string, logger *log.Logger) (ActorLookup, error) {
	rateLimitWaiter, err := github_ratelimit.NewRateLimitWaiter(nil, github_ratelimit.WithSingleSleepLimit(5*time.Minute, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit waiter: %w", err)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Base:   rateLimitWaiter,
			Source: ts,
		},
	}
	return &GitHubGateway{
		restClient:    github.NewClient(httpClient),
		graphqlClient: githubv4.NewClient(httpClient),
		logger:        logger,
	}, nil
}

// SuggestCloseActor returns the login of whoever merged or closed the PR.
// repository must be in "owner/name" form.
func (g *GitHubGateway) SuggestCloseActor(ctx context.Context, repository string, number int) (string, error) {
	owner, name, ok := strings.Cut(repository, "/")
	if !ok || owner == "" || name == "" {
		return "", fmt.Errorf("repository %q is not in owner/name form", repository)
	}
	g.logger.Printf("Looking up close actor for %s#%d...\n", repository, number)

	variables := map[string]interface{}{
		"owner":  githubv4.String(owner),
		"name":   githubv4.String(name),
		"number": githubv4.Int(number),
	}
	var q closeActorQuery
	if err := g.graphqlClient.Query(ctx, &q, variables); err != nil {
		return "", fmt.Errorf("failed to execute GraphQL query for close actor: %w", err)
	}

	pr := q.Repository.PullRequest
	if pr.Merged && pr.MergedBy.Login != "" {
		return string(pr.MergedBy.Login), nil
	}
	for i := len(pr.TimelineItems.Nodes) - 1; i >= 0; i-- {
		node := pr.TimelineItems.Nodes[i]
		if node.Typename != "ClosedEvent" {
			continue
		}
		if login := node.ClosedEvent.Actor.Login; login != "" {
			return string(login), nil
		}
	}
	return "", ErrNoCloseActor
}

// UserExists reports whether login names an existing GitHub account.
func (g *GitHubGateway) UserExists(ctx context.Context, login string) (bool, error) {
	_, resp, err := g.restClient.Users.Get(ctx, login)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up user with REST API: %w", err)
	}
	return true, nil
}
