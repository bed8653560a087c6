package store

import (
	"context"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/cppla/teamfeed/models"
	"github.com/cppla/teamfeed/utils"
)

const (
	inviteCodeLength   = 8
	inviteCodeAttempts = 16
	maxTeamName        = 100
	maxTeamPostTitle   = 200
)

// TeamView is a team as shown to one of its members.
type TeamView struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	InviteCode  string    `json:"invite_code"`
	OwnerID     uint      `json:"owner"`
	OwnerName   string    `json:"owner_name"`
	MemberCount int64     `json:"member_count"`
	ShareURL    string    `json:"share_url"`
	CreatedAt   time.Time `json:"created_at"`
}

// TeamPostView is a team post with its author's username.
type TeamPostView struct {
	ID         uint           `json:"id"`
	TeamID     uint           `json:"team"`
	AuthorID   uint           `json:"author"`
	AuthorName string         `json:"author_name"`
	Title      string         `json:"title"`
	Content    string         `json:"content"`
	Meta       map[string]any `json:"meta"`
	CreatedAt  time.Time      `json:"created_at"`
}

func teamPostView(p models.TeamPost) TeamPostView {
	meta := map[string]any(p.Meta)
	if meta == nil {
		meta = map[string]any{}
	}
	return TeamPostView{
		ID:         p.ID,
		TeamID:     p.TeamID,
		AuthorID:   p.AuthorID,
		AuthorName: p.Author.Username,
		Title:      p.Title,
		Content:    p.Content,
		Meta:       meta,
		CreatedAt:  p.CreatedAt,
	}
}

// TeamPostInput is the client payload for a team post. Team and author are
// never taken from the client.
type TeamPostInput struct {
	Title   string
	Content string
	Meta    any
}

// TeamStore manages teams, membership and team posts.
type TeamStore struct {
	db          *gorm.DB
	frontendURL string
	newCode     func() (string, error)
}

func NewTeamStore(db *gorm.DB, frontendURL string) *TeamStore {
	return &TeamStore{
		db:          db,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		newCode:     func() (string, error) { return utils.GenerateInviteCode(inviteCodeLength) },
	}
}

func (s *TeamStore) shareURL(code string) string {
	return s.frontendURL + "/join-team?code=" + url.QueryEscape(code)
}

// views annotates teams with owner names and member counts.
func (s *TeamStore) views(ctx context.Context, teams []models.Team) ([]TeamView, error) {
	out := make([]TeamView, 0, len(teams))
	if len(teams) == 0 {
		return out, nil
	}
	db := s.db.WithContext(ctx)

	teamIDs := make([]uint, 0, len(teams))
	ownerIDs := make([]uint, 0, len(teams))
	for _, t := range teams {
		teamIDs = append(teamIDs, t.ID)
		ownerIDs = append(ownerIDs, t.OwnerID)
	}

	var owners []models.User
	if err := db.Select("id", "username").Where("id IN ?", utils.UniqueUint(ownerIDs)).Find(&owners).Error; err != nil {
		return nil, Internal(err, "load team owners")
	}
	names := make(map[uint]string, len(owners))
	for _, u := range owners {
		names[u.ID] = u.Username
	}

	var rows []struct {
		TeamID uint
		N      int64
	}
	if err := db.Model(&models.TeamMember{}).
		Select("team_id, COUNT(*) AS n").
		Where("team_id IN ?", teamIDs).
		Group("team_id").
		Scan(&rows).Error; err != nil {
		return nil, Internal(err, "count members")
	}
	counts := make(map[uint]int64, len(rows))
	for _, r := range rows {
		counts[r.TeamID] = r.N
	}

	for _, t := range teams {
		out = append(out, TeamView{
			ID:          t.ID,
			Name:        t.Name,
			Description: t.Description,
			InviteCode:  t.InviteCode,
			OwnerID:     t.OwnerID,
			OwnerName:   names[t.OwnerID],
			MemberCount: counts[t.ID],
			ShareURL:    s.shareURL(t.InviteCode),
			CreatedAt:   t.CreatedAt,
		})
	}
	return out, nil
}

// ListTeams returns the teams userID belongs to.
func (s *TeamStore) ListTeams(ctx context.Context, userID uint) ([]TeamView, error) {
	db := s.db.WithContext(ctx)
	var teams []models.Team
	err := db.
		Where("id IN (?)", db.Model(&models.TeamMember{}).Select("team_id").Where("user_id = ?", userID)).
		Order("created_at ASC, id ASC").
		Find(&teams).Error
	if err != nil {
		return nil, Internal(err, "list teams")
	}
	return s.views(ctx, teams)
}

// CreateTeam creates a team owned by ownerID with a fresh invite code and
// enrolls the owner as admin.
func (s *TeamStore) CreateTeam(ctx context.Context, ownerID uint, name, description string) (*TeamView, error) {
	name = utils.CleanText(name)
	if name == "" {
		return nil, Validation("name", "must not be empty")
	}
	if utf8.RuneCountInString(name) > maxTeamName {
		return nil, Validation("name", "at most 100 characters")
	}
	description = utils.CleanText(description)

	db := s.db.WithContext(ctx)
	for attempt := 0; attempt < inviteCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, Internal(err, "generate invite code")
		}
		var taken int64
		if err := db.Model(&models.Team{}).Where("invite_code = ?", code).Count(&taken).Error; err != nil {
			return nil, Internal(err, "check invite code")
		}
		if taken > 0 {
			continue
		}

		team := models.Team{Name: name, Description: description, InviteCode: code, OwnerID: ownerID}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&team).Error; err != nil {
				return err
			}
			return tx.Create(&models.TeamMember{TeamID: team.ID, UserID: ownerID, Role: models.TeamRoleAdmin}).Error
		})
		if isDuplicate(err) {
			continue
		}
		if err != nil {
			return nil, Internal(err, "create team")
		}
		views, err := s.views(ctx, []models.Team{team})
		if err != nil {
			return nil, err
		}
		return &views[0], nil
	}
	return nil, Internal(nil, "no free invite code after %d attempts", inviteCodeAttempts)
}

// JoinByCode enrolls userID as a member of the team owning code.
func (s *TeamStore) JoinByCode(ctx context.Context, userID uint, code string) (*TeamView, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, Validation("invite_code", "must not be empty")
	}
	db := s.db.WithContext(ctx)

	var team models.Team
	if err := db.Where("invite_code = ?", code).First(&team).Error; err != nil {
		if isNotFound(err) {
			return nil, NotFound("invite code does not match any team")
		}
		return nil, Internal(err, "find team by code")
	}

	already, err := s.isMember(ctx, team.ID, userID)
	if err != nil {
		return nil, err
	}
	if already {
		return nil, Validation("invite_code", "already a member of this team")
	}
	member := models.TeamMember{TeamID: team.ID, UserID: userID, Role: models.TeamRoleMember}
	if err := db.Create(&member).Error; err != nil {
		// lost a race with a concurrent join
		if isDuplicate(err) {
			return nil, Validation("invite_code", "already a member of this team")
		}
		return nil, Internal(err, "join team %d", team.ID)
	}
	views, err := s.views(ctx, []models.Team{team})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *TeamStore) isMember(ctx context.Context, teamID, userID uint) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.TeamMember{}).
		Where("team_id = ? AND user_id = ?", teamID, userID).
		Count(&n).Error
	if err != nil {
		return false, Internal(err, "check membership")
	}
	return n > 0, nil
}

// ListTeamPosts returns a team's posts, newest first, to its members.
func (s *TeamStore) ListTeamPosts(ctx context.Context, teamID, userID uint) ([]TeamPostView, error) {
	ok, err := s.isMember(ctx, teamID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, Forbidden("not a member of this team")
	}
	var posts []models.TeamPost
	if err := s.db.WithContext(ctx).Preload("Author").
		Where("team_id = ?", teamID).
		Order("created_at DESC, id DESC").
		Find(&posts).Error; err != nil {
		return nil, Internal(err, "list team posts")
	}
	out := make([]TeamPostView, 0, len(posts))
	for _, p := range posts {
		out = append(out, teamPostView(p))
	}
	return out, nil
}

// CreateTeamPost publishes in a team on behalf of userID.
func (s *TeamStore) CreateTeamPost(ctx context.Context, teamID, userID uint, in TeamPostInput) (*TeamPostView, error) {
	db := s.db.WithContext(ctx)
	var team models.Team
	if err := db.Select("id").First(&team, teamID).Error; err != nil {
		if isNotFound(err) {
			return nil, NotFound("team not found")
		}
		return nil, Internal(err, "load team %d", teamID)
	}
	ok, err := s.isMember(ctx, teamID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, Forbidden("not a member of this team")
	}

	title := utils.CleanText(in.Title)
	if title == "" {
		return nil, Validation("title", "must not be empty")
	}
	if utf8.RuneCountInString(title) > maxTeamPostTitle {
		return nil, Validation("title", "at most 200 characters")
	}
	content := utils.CleanText(in.Content)
	if content == "" {
		return nil, Validation("content", "must not be empty")
	}
	meta, ok := coerceObject(in.Meta)
	if !ok {
		return nil, Validation("meta", "must be a JSON object")
	}

	post := models.TeamPost{
		TeamID:   teamID,
		AuthorID: userID,
		Title:    title,
		Content:  content,
		Meta:     datatypes.JSONMap(meta),
	}
	if err := db.Create(&post).Error; err != nil {
		return nil, Internal(err, "create team post")
	}
	if err := db.First(&post.Author, userID).Error; err != nil {
		return nil, Internal(err, "load author")
	}
	v := teamPostView(post)
	return &v, nil
}
