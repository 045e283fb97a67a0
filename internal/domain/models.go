// Package domain defines the persistence models for users, friendships,
// promo codes and the arcade catalog. These types are mapped with GORM and
// form the core data layer of the platform.
//
// Every model embeds Lifecycle and therefore satisfies Deletable. Timestamps
// are stamped explicitly by the lifecycle package; GORM's automatic
// CreatedAt/UpdatedAt tracking is switched off on the tags so that the write
// path is visible at the call site.
package domain

import (
	"strings"
	"time"
)

// Lifecycle carries the deletion metadata shared by every entity kind.
//
// Invariant: IsDeleted is true iff DeletedAt is non-nil.
type Lifecycle struct {
	CreatedAt time.Time  `json:"created_at"           gorm:"not null;autoCreateTime:false"`
	UpdatedAt time.Time  `json:"updated_at"           gorm:"not null;autoUpdateTime:false"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" gorm:"index"`
	IsDeleted bool       `json:"is_deleted"           gorm:"not null;default:false;index"`
}

// State exposes the embedded lifecycle so that *T satisfies Deletable.
func (l *Lifecycle) State() *Lifecycle { return l }

// Deletable is implemented by every model that embeds Lifecycle.
type Deletable interface {
	State() *Lifecycle
}

// Entity is a Deletable record addressed by a string id. The catalog
// services are generic over it.
type Entity interface {
	Deletable
	GetID() string
	SetID(id string)
}

// User is a platform account. FirebaseID is the stable identifier issued by
// the external identity provider; PublicID is the short code users share with
// each other to send friend requests.
type User struct {
	ID         string  `json:"id"          gorm:"type:char(36);primaryKey"`
	PublicID   string  `json:"public_id"   gorm:"type:varchar(12);not null;uniqueIndex"`
	FirebaseID string  `json:"firebase_id" gorm:"type:varchar(128);not null;uniqueIndex"`
	FirstName  *string `json:"first_name,omitempty" gorm:"type:varchar(255)"`
	LastName   *string `json:"last_name,omitempty"  gorm:"type:varchar(255)"`
	NbTicket   int     `json:"nb_ticket"   gorm:"not null;default:0;check:chk_users_nb_ticket,nb_ticket >= 0"`
	Bar        bool    `json:"bar"         gorm:"not null;default:false"`
	Lifecycle
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Friendship is a directed edge from the requester to the target.
//
// PairKey holds both user ids in lexical order and is unique, so the store
// itself refuses a second row for the same unordered pair whatever the
// direction. MarkedForDelete is a reserved column kept for compatibility and
// is not used by the lifecycle.
type Friendship struct {
	ID              string `json:"id"           gorm:"type:char(36);primaryKey"`
	FromUserID      string `json:"from_user_id" gorm:"type:char(36);not null;index:idx_friends_from"`
	ToUserID        string `json:"to_user_id"   gorm:"type:char(36);not null;index:idx_friends_to"`
	PairKey         string `json:"-"            gorm:"type:varchar(80);not null;uniqueIndex:ux_friends_pair"`
	Accepted        bool   `json:"accepted"     gorm:"not null;default:false"`
	Declined        bool   `json:"declined"     gorm:"not null;default:false"`
	MarkedForDelete bool   `json:"marked_for_delete" gorm:"column:marked_for_delete;not null;default:false"`
	Lifecycle

	From User `json:"-" gorm:"foreignKey:FromUserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	To   User `json:"-" gorm:"foreignKey:ToUserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Friendship.
func (Friendship) TableName() string { return "friends" }

// Pending reports whether the request is still awaiting an answer.
func (f *Friendship) Pending() bool { return !f.Accepted && !f.Declined }

// PairKey returns the direction-independent key of the pair {a, b}.
func PairKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + ":" + b
}

// PromoCode grants NbParties tickets per redemption. UsedCount only grows and
// never exceeds MaxUses when a cap is set (also enforced by a CHECK).
type PromoCode struct {
	ID        string     `json:"id"         gorm:"type:char(36);primaryKey"`
	Code      string     `json:"code"       gorm:"type:varchar(12);not null;uniqueIndex"`
	NbParties int        `json:"nb_parties" gorm:"not null;check:chk_promo_nb_parties,nb_parties > 0"`
	IsActive  bool       `json:"is_active"  gorm:"not null"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	MaxUses   *int       `json:"max_uses,omitempty"`
	UsedCount int        `json:"used_count" gorm:"not null;default:0;check:chk_promo_used,max_uses IS NULL OR used_count <= max_uses"`
	Lifecycle
}

// TableName returns the database table name for PromoCode.
func (PromoCode) TableName() string { return "promo_codes" }

// Expired reports whether the code has an expiry strictly before now.
func (p *PromoCode) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && p.ExpiresAt.Before(now)
}

// Exhausted reports whether the usage cap has been reached.
func (p *PromoCode) Exhausted() bool {
	return p.MaxUses != nil && p.UsedCount >= *p.MaxUses
}

// Game is a title playable on arcade machines.
type Game struct {
	ID          string  `json:"id"            gorm:"type:char(36);primaryKey"`
	Name        string  `json:"name"          gorm:"type:varchar(255);not null;uniqueIndex"`
	Description *string `json:"description,omitempty" gorm:"type:varchar(255)"`
	NbMinPlayer int     `json:"nb_min_player" gorm:"not null"`
	NbMaxPlayer int     `json:"nb_max_player" gorm:"not null"`
	Lifecycle
}

// TableName returns the database table name for Game.
func (Game) TableName() string { return "games" }

func (g *Game) GetID() string { return g.ID }
func (g *Game) SetID(id string) { g.ID = id }

// ArcadeMachine is a physical cabinet running one or two games.
type ArcadeMachine struct {
	ID           string  `json:"id"       gorm:"type:char(36);primaryKey"`
	Name         *string `json:"name,omitempty"         gorm:"type:varchar(255)"`
	Description  *string `json:"description,omitempty"  gorm:"type:varchar(255)"`
	Localisation *string `json:"localisation,omitempty" gorm:"type:varchar(255)"`
	Game1ID      string  `json:"game1_id" gorm:"type:char(36);not null;index"`
	Game2ID      *string `json:"game2_id,omitempty" gorm:"type:char(36);index"`
	Lifecycle

	Game1 Game  `json:"-" gorm:"foreignKey:Game1ID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Game2 *Game `json:"-" gorm:"foreignKey:Game2ID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

// TableName returns the database table name for ArcadeMachine.
func (ArcadeMachine) TableName() string { return "arcade_machines" }

func (m *ArcadeMachine) GetID() string { return m.ID }
func (m *ArcadeMachine) SetID(id string) { m.ID = id }

// Payment records a completed ticket purchase. SessionStripeToken identifies
// the checkout session and is unique.
type Payment struct {
	ID                 string `json:"id"                   gorm:"type:char(36);primaryKey"`
	UserID             string `json:"user_id"              gorm:"type:char(36);not null;index"`
	SessionStripeToken string `json:"session_stripe_token" gorm:"type:varchar(255);not null;uniqueIndex"`
	Amount             int    `json:"amount"               gorm:"not null"`
	NbTicket           int    `json:"nb_ticket"            gorm:"not null"`
	Lifecycle

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Payment.
func (Payment) TableName() string { return "payments" }

func (p *Payment) GetID() string { return p.ID }
func (p *Payment) SetID(id string) { p.ID = id }

// Party is a play session between two players on a machine.
type Party struct {
	ID         string `json:"id"         gorm:"type:char(36);primaryKey"`
	Player1ID  string `json:"player1_id" gorm:"type:char(36);not null;index"`
	Player2ID  string `json:"player2_id" gorm:"type:char(36);not null;index"`
	GameID     string `json:"game_id"    gorm:"type:char(36);not null;index"`
	MachineID  string `json:"machine_id" gorm:"type:char(36);not null;index"`
	TotalScore *int   `json:"total_score,omitempty"`
	P1Score    *int   `json:"p1_score,omitempty"`
	P2Score    *int   `json:"p2_score,omitempty"`
	Password   *int   `json:"password,omitempty"`
	Done       bool   `json:"done"   gorm:"not null;default:false"`
	Cancel     bool   `json:"cancel" gorm:"not null;default:false"`
	Bar        *bool  `json:"bar,omitempty"`
	Lifecycle

	Player1 User          `json:"-" gorm:"foreignKey:Player1ID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Player2 User          `json:"-" gorm:"foreignKey:Player2ID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Game    Game          `json:"-" gorm:"foreignKey:GameID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Machine ArcadeMachine `json:"-" gorm:"foreignKey:MachineID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName returns the database table name for Party.
func (Party) TableName() string { return "parties" }

func (p *Party) GetID() string { return p.ID }
func (p *Party) SetID(id string) { p.ID = id }
