package validations

import (
	"context"

	chatApp "github.com/AzielCF/az-engage/chat/application"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

type SendMessageRequest struct {
	Content string `json:"content"`
	ReplyTo string `json:"reply_to_id"`
}

type ReactionRequest struct {
	Emoji string `json:"emoji"`
}

func ValidateSendMessage(ctx context.Context, request SendMessageRequest) error {
	return fieldErrors(validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Content, validation.Required, validation.Length(1, 4096)),
		validation.Field(&request.ReplyTo, is.UUID),
	))
}

func ValidateReaction(ctx context.Context, request ReactionRequest) error {
	return fieldErrors(validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Emoji, validation.Required, validation.RuneLength(1, 10)),
	))
}

func ValidateUploadRequest(ctx context.Context, request chatApp.UploadRequest) error {
	return fieldErrors(validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Filename, validation.Required, validation.Length(1, 255)),
		validation.Field(&request.ContentType, validation.Required),
		validation.Field(&request.FileSize, validation.Required, validation.Min(int64(1))),
	))
}

func ValidateConfirmUpload(ctx context.Context, request chatApp.ConfirmUploadInput) error {
	return fieldErrors(validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.S3Key, validation.Required),
		validation.Field(&request.AttachmentID, is.UUID),
		validation.Field(&request.ContentType, validation.Required),
		validation.Field(&request.FileSize, validation.Required, validation.Min(int64(1))),
		validation.Field(&request.Caption, validation.Length(0, 1024)),
	))
}

func ValidateDepartment(ctx context.Context, request chatApp.DepartmentInput) error {
	return fieldErrors(validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Name, validation.Required, validation.Length(1, 120)),
		validation.Field(&request.TransferMessage, validation.Length(0, 4096)),
	))
}
