package domain

import "errors"

var (
	ErrCampaignNotFound    = errors.New("campaign not found")
	ErrContactNotFound     = errors.New("campaign contact not found")
	ErrInvalidTransition   = errors.New("campaign status does not allow this action")
	ErrNotEditable         = errors.New("campaign can only be edited while draft, scheduled or paused")
	ErrNoVariants          = errors.New("campaign has no messages")
	ErrNoContacts          = errors.New("campaign has no contacts")
	ErrNoConnectedInstance = errors.New("no connected instance for campaign")
	ErrNoInstanceAvailable = errors.New("every campaign instance reached its daily limit")
	ErrForeignInstance     = errors.New("instance does not belong to tenant")
)
