package seed

import (
	"context"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/marinet/internal/auth"
	"github.com/MarcoPoloResearchLab/marinet/internal/groups"
	"github.com/MarcoPoloResearchLab/marinet/internal/posts"
	"github.com/MarcoPoloResearchLab/marinet/internal/records"
	"github.com/brianvoe/gofakeit/v6"
	"go.uber.org/zap"
)

// DemoPassword is shared by every generated student.
const DemoPassword = "password123"

// DemoOptions controls the generated population.
type DemoOptions struct {
	Profiles        int
	PostsPerProfile int
	// Seed makes the population reproducible; zero picks a random one.
	Seed int64
}

// DemoResult summarizes what Populate created.
type DemoResult struct {
	Profiles    []records.Profile
	Posts       int
	Memberships int
	Votes       int
}

// Population generates fake students, memberships, posts and votes through the domain services.
type Population struct {
	auth   *auth.Manager
	groups *groups.Service
	posts  *posts.Service
	logger *zap.Logger
}

// NewPopulation constructs a Population.
func NewPopulation(manager *auth.Manager, groupService *groups.Service, postService *posts.Service, logger *zap.Logger) *Population {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Population{auth: manager, groups: groupService, posts: postService, logger: logger}
}

// Populate creates opts.Profiles students. Each joins a random subset of the existing groups,
// writes opts.PostsPerProfile posts and upvotes the previous student's posts.
func (p *Population) Populate(ctx context.Context, opts DemoOptions) (DemoResult, error) {
	faker := gofakeit.New(opts.Seed)
	available, err := p.groups.List(ctx)
	if err != nil {
		return DemoResult{}, err
	}

	result := DemoResult{}
	var previousPosts []records.Post
	for index := range max(opts.Profiles, 0) {
		username := fmt.Sprintf("%s%d", strings.ToLower(faker.Username()), faker.Number(100, 999))
		email := fmt.Sprintf("%s.%d@students.marinet.edu", username, index)
		profile, err := p.auth.SignUp(ctx, email, DemoPassword, username)
		if err != nil {
			return result, fmt.Errorf("seed: demo profile %d: %w", index, err)
		}
		result.Profiles = append(result.Profiles, profile)

		var joined []records.Group
		for _, group := range available {
			if !faker.Bool() {
				continue
			}
			if _, err := p.groups.Join(ctx, group.ID, profile.ID); err != nil {
				return result, fmt.Errorf("seed: demo join %s: %w", group.ID, err)
			}
			joined = append(joined, group)
			result.Memberships++
		}

		var written []records.Post
		for range max(opts.PostsPerProfile, 0) {
			input := posts.NewPost{UserID: profile.ID, Content: faker.Sentence(faker.Number(6, 18))}
			if len(joined) > 0 && faker.Bool() {
				groupID := joined[faker.Number(0, len(joined)-1)].ID
				input.GroupID = &groupID
			}
			post, err := p.posts.Create(ctx, input)
			if err != nil {
				return result, fmt.Errorf("seed: demo post: %w", err)
			}
			written = append(written, post)
			result.Posts++
		}

		for _, post := range previousPosts {
			if _, err := p.posts.Vote(ctx, post.ID, profile.ID, records.VoteUp); err != nil {
				return result, fmt.Errorf("seed: demo vote: %w", err)
			}
			result.Votes++
		}
		previousPosts = written
	}

	p.logger.Info("generated demo population",
		zap.Int("profiles", len(result.Profiles)),
		zap.Int("posts", result.Posts),
		zap.Int("memberships", result.Memberships),
		zap.Int("votes", result.Votes))
	return result, nil
}
