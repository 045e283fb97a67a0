// Package services – catalog
//
// Games, arcade machines, payments and parties carry no relationship rules
// beyond their references, so they share EntityService. Each kind brings an
// explicit patch type and a validator.
package services

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/retronova/arcade-backend/internal/domain"
	"github.com/retronova/arcade-backend/internal/lifecycle"
	"github.com/retronova/arcade-backend/internal/repo"
)

// GameService manages games.
type GameService = EntityService[domain.Game, *domain.Game]

// MachineService manages arcade machines.
type MachineService = EntityService[domain.ArcadeMachine, *domain.ArcadeMachine]

// PaymentService manages payments.
type PaymentService = EntityService[domain.Payment, *domain.Payment]

// PartyService manages parties.
type PartyService = EntityService[domain.Party, *domain.Party]

// NewGameService returns the service for games. Names are unique.
func NewGameService(db *gorm.DB) *GameService {
	return &GameService{
		Manager:   lifecycle.New[domain.Game](db, domain.ErrGameNotFound),
		Name:      "GameService",
		Validate:  validateGame,
		Duplicate: domain.ErrDuplicateGame,
	}
}

// NewMachineService returns the service for arcade machines.
func NewMachineService(db *gorm.DB) *MachineService {
	return &MachineService{
		Manager:  lifecycle.New[domain.ArcadeMachine](db, domain.ErrMachineNotFound),
		Name:     "MachineService",
		Validate: validateMachine,
	}
}

// NewPaymentService returns the service for payments. Session tokens are
// unique.
func NewPaymentService(db *gorm.DB) *PaymentService {
	return &PaymentService{
		Manager:   lifecycle.New[domain.Payment](db, domain.ErrPaymentNotFound),
		Name:      "PaymentService",
		Validate:  validatePayment,
		Duplicate: domain.ErrDuplicatePayment,
	}
}

// NewPartyService returns the service for parties.
func NewPartyService(db *gorm.DB) *PartyService {
	return &PartyService{
		Manager:  lifecycle.New[domain.Party](db, domain.ErrPartyNotFound),
		Name:     "PartyService",
		Validate: validateParty,
	}
}

// requireActive fails with notFound unless model's table has an active row
// with id.
func requireActive(ctx context.Context, tx *gorm.DB, model any, id string, notFound error) error {
	if strings.TrimSpace(id) == "" {
		return domain.ErrMissingField
	}
	ok, err := repo.ExistsActive(ctx, tx, model, id)
	if err != nil {
		return err
	}
	if !ok {
		return notFound
	}
	return nil
}

func validateGame(_ context.Context, _ *gorm.DB, g *domain.Game) error {
	g.Name = strings.TrimSpace(g.Name)
	if g.Name == "" {
		return domain.ErrMissingField
	}
	if g.NbMinPlayer < 1 || g.NbMinPlayer > g.NbMaxPlayer {
		return domain.ErrInvalidPlayers
	}
	return nil
}

func validateMachine(ctx context.Context, tx *gorm.DB, m *domain.ArcadeMachine) error {
	if err := requireActive(ctx, tx, &domain.Game{}, m.Game1ID, domain.ErrGameNotFound); err != nil {
		return err
	}
	if m.Game2ID != nil {
		return requireActive(ctx, tx, &domain.Game{}, *m.Game2ID, domain.ErrGameNotFound)
	}
	return nil
}

func validatePayment(ctx context.Context, tx *gorm.DB, p *domain.Payment) error {
	p.SessionStripeToken = strings.TrimSpace(p.SessionStripeToken)
	if p.SessionStripeToken == "" {
		return domain.ErrMissingField
	}
	if p.Amount <= 0 || p.NbTicket <= 0 {
		return domain.ErrInvalidAmount
	}
	return requireActive(ctx, tx, &domain.User{}, p.UserID, domain.ErrUserNotFound)
}

func validateParty(ctx context.Context, tx *gorm.DB, p *domain.Party) error {
	for _, id := range []string{p.Player1ID, p.Player2ID} {
		if err := requireActive(ctx, tx, &domain.User{}, id, domain.ErrUserNotFound); err != nil {
			return err
		}
	}
	if err := requireActive(ctx, tx, &domain.Game{}, p.GameID, domain.ErrGameNotFound); err != nil {
		return err
	}
	return requireActive(ctx, tx, &domain.ArcadeMachine{}, p.MachineID, domain.ErrMachineNotFound)
}

// GamePatch updates a game.
type GamePatch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	NbMinPlayer *int    `json:"nb_min_player"`
	NbMaxPlayer *int    `json:"nb_max_player"`
}

// Apply implements Patch.
func (p GamePatch) Apply(g *domain.Game) map[string]any {
	c := map[string]any{}
	if p.Name != nil {
		g.Name = strings.TrimSpace(*p.Name)
		c["name"] = g.Name
	}
	if p.Description != nil {
		g.Description = p.Description
		c["description"] = *p.Description
	}
	if p.NbMinPlayer != nil {
		g.NbMinPlayer = *p.NbMinPlayer
		c["nb_min_player"] = g.NbMinPlayer
	}
	if p.NbMaxPlayer != nil {
		g.NbMaxPlayer = *p.NbMaxPlayer
		c["nb_max_player"] = g.NbMaxPlayer
	}
	return c
}

// MachinePatch updates an arcade machine. ClearGame2 unsets the second game.
type MachinePatch struct {
	Name         *string `json:"name"`
	Description  *string `json:"description"`
	Localisation *string `json:"localisation"`
	Game1ID      *string `json:"game1_id"`
	Game2ID      *string `json:"game2_id"`
	ClearGame2   bool    `json:"clear_game2"`
}

// Apply implements Patch.
func (p MachinePatch) Apply(m *domain.ArcadeMachine) map[string]any {
	c := map[string]any{}
	if p.Name != nil {
		m.Name = p.Name
		c["name"] = *p.Name
	}
	if p.Description != nil {
		m.Description = p.Description
		c["description"] = *p.Description
	}
	if p.Localisation != nil {
		m.Localisation = p.Localisation
		c["localisation"] = *p.Localisation
	}
	if p.Game1ID != nil {
		m.Game1ID = *p.Game1ID
		c["game1_id"] = m.Game1ID
	}
	switch {
	case p.ClearGame2:
		m.Game2ID = nil
		c["game2_id"] = nil
	case p.Game2ID != nil:
		m.Game2ID = p.Game2ID
		c["game2_id"] = *p.Game2ID
	}
	return c
}

// PaymentPatch updates a payment. The owning user cannot change.
type PaymentPatch struct {
	SessionStripeToken *string `json:"session_stripe_token"`
	Amount             *int    `json:"amount"`
	NbTicket           *int    `json:"nb_ticket"`
}

// Apply implements Patch.
func (p PaymentPatch) Apply(pay *domain.Payment) map[string]any {
	c := map[string]any{}
	if p.SessionStripeToken != nil {
		pay.SessionStripeToken = strings.TrimSpace(*p.SessionStripeToken)
		c["session_stripe_token"] = pay.SessionStripeToken
	}
	if p.Amount != nil {
		pay.Amount = *p.Amount
		c["amount"] = pay.Amount
	}
	if p.NbTicket != nil {
		pay.NbTicket = *p.NbTicket
		c["nb_ticket"] = pay.NbTicket
	}
	return c
}

// PartyPatch records scores and the outcome of a party. Players, game and
// machine are fixed at creation.
type PartyPatch struct {
	TotalScore *int  `json:"total_score"`
	P1Score    *int  `json:"p1_score"`
	P2Score    *int  `json:"p2_score"`
	Password   *int  `json:"password"`
	Done       *bool `json:"done"`
	Cancel     *bool `json:"cancel"`
	Bar        *bool `json:"bar"`
}

// Apply implements Patch.
func (p PartyPatch) Apply(pt *domain.Party) map[string]any {
	c := map[string]any{}
	setInt := func(col string, dst **int, v *int) {
		if v != nil {
			*dst = v
			c[col] = *v
		}
	}
	setInt("total_score", &pt.TotalScore, p.TotalScore)
	setInt("p1_score", &pt.P1Score, p.P1Score)
	setInt("p2_score", &pt.P2Score, p.P2Score)
	setInt("password", &pt.Password, p.Password)
	if p.Done != nil {
		pt.Done = *p.Done
		c["done"] = pt.Done
	}
	if p.Cancel != nil {
		pt.Cancel = *p.Cancel
		c["cancel"] = pt.Cancel
	}
	if p.Bar != nil {
		pt.Bar = p.Bar
		c["bar"] = *p.Bar
	}
	return c
}
