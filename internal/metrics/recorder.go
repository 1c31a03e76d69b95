package metrics

// Recorder is the single choke point that applies events to entities. Every
// event lands on exactly one repository accumulator set plus the involved
// users' sets; organization accumulators are populated once at rollup, never
// live, so an event can never reach the organization twice.
type Recorder struct {
	org *Organization
}

// NewRecorder creates a recorder over one organization.
func NewRecorder(org *Organization) *Recorder {
	return &Recorder{org: org}
}

// RecordPullRequest applies one pull request event to its repository and
// author.
func (r *Recorder) RecordPullRequest(ev PullRequestEvent) {
	repo := r.org.GetOrCreateRepository(ev.Repo, "")
	repo.recordPullRequest(ev)
	repo.Accumulators.Code.ApplyPullRequest(ev)
	repo.Accumulators.Review.ApplyPullRequest(ev)
	repo.Accumulators.Time.ApplyPullRequest(ev)
	repo.Accumulators.Collaboration.ApplyPullRequest(ev)
	repo.Accumulators.Bottleneck.ApplyPullRequest(ev)

	if ev.Author == "" {
		return
	}
	author := r.org.GetOrCreateUser(ev.Author)
	author.recordPullRequest(ev)
	author.Accumulators.Code.ApplyPullRequest(ev)
	author.Accumulators.Review.ApplyPullRequest(ev)
	author.Accumulators.Time.ApplyPullRequest(ev)
	author.Accumulators.Collaboration.ApplyPullRequest(ev)
	author.Accumulators.Bottleneck.ApplyPullRequest(ev)
}

// RecordReview applies one review event to its repository and reviewer.
func (r *Recorder) RecordReview(ev ReviewEvent) {
	repo := r.org.GetOrCreateRepository(ev.Repo, "")
	repo.Accumulators.Review.ApplyReview(ev)
	repo.Accumulators.Collaboration.ApplyReview(ev)
	repo.Accumulators.Bottleneck.ApplyReview(ev)
	repo.recordParticipant(ev.Reviewer, ev.ReviewerTeam, ev.SubmittedAt)

	if ev.Reviewer == "" {
		return
	}
	reviewer := r.org.GetOrCreateUser(ev.Reviewer)
	reviewer.Accumulators.Review.ApplyReview(ev)
	reviewer.Accumulators.Collaboration.ApplyReview(ev)
	reviewer.Accumulators.Bottleneck.ApplyReview(ev)
}

// RecordComment applies one comment event to its repository, the commenter
// (given) and the pull request author (received).
func (r *Recorder) RecordComment(ev CommentEvent) {
	repo := r.org.GetOrCreateRepository(ev.Repo, "")
	repo.Accumulators.Review.ApplyCommentGiven(ev)
	repo.Accumulators.Review.ApplyCommentReceived(ev)
	repo.Accumulators.Collaboration.ApplyComment(ev)
	repo.recordParticipant(ev.Commenter, r.org.TeamOf(ev.Commenter), ev.CreatedAt)

	if ev.Commenter != "" {
		commenter := r.org.GetOrCreateUser(ev.Commenter)
		commenter.Accumulators.Review.ApplyCommentGiven(ev)
		commenter.Accumulators.Collaboration.ApplyComment(ev)
	}
	if ev.PRAuthor != "" && ev.PRAuthor != ev.Commenter {
		author := r.org.GetOrCreateUser(ev.PRAuthor)
		author.Accumulators.Review.ApplyCommentReceived(ev)
	}
}

// RecordCommit applies one commit observation to its repository and author.
func (r *Recorder) RecordCommit(ev CommitObservation) {
	repo := r.org.GetOrCreateRepository(ev.Repo, "")
	repo.Accumulators.Code.ApplyCommit(ev)
	repo.recordParticipant(ev.Author, r.org.TeamOf(ev.Author), ev.AuthoredAt)

	if ev.Author == "" {
		return
	}
	author := r.org.GetOrCreateUser(ev.Author)
	author.Accumulators.Code.ApplyCommit(ev)
}
