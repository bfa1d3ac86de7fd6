package domain

import "errors"

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrAttachmentNotFound   = errors.New("attachment not found")
	ErrDepartmentNotFound   = errors.New("department not found")

	ErrDuplicateConversation = errors.New("conversation already exists for this remote party")
	ErrDuplicateMessage      = errors.New("message with this gateway id already exists")
	ErrDuplicateHash         = errors.New("attachment with this content hash already exists")
	ErrDuplicateReaction     = errors.New("reactor already reacted to this message")

	// ErrStatusRegression is returned when a status update would move a message backwards.
	ErrStatusRegression = errors.New("message status cannot move backwards")

	ErrNoGatewayID    = errors.New("message has not been delivered to the gateway yet")
	ErrInvalidEmoji   = errors.New("emoji must be at most 10 symbol characters")
	ErrNotDeletable   = errors.New("only sent outgoing messages can be deleted")
	ErrForeignKey     = errors.New("object key does not belong to this tenant")
	ErrFileTooLarge   = errors.New("file exceeds the maximum attachment size")
	ErrMimeNotAllowed = errors.New("content type is not allowed")
	ErrEmptyMessage   = errors.New("message content cannot be empty")
	ErrSendInProgress = errors.New("message is being sent by another worker")
)
