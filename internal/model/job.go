package model

import "time"

// Sticker is a small decorative symbol placed at a percentage-based
// coordinate of the output frame. Scale multiplies the base sticker size.
type Sticker struct {
	Symbol   string  `json:"symbol" validate:"required"`
	XPercent float64 `json:"xPercent" validate:"min=0,max=100"`
	YPercent float64 `json:"yPercent" validate:"min=0,max=100"`
	Scale    float64 `json:"scale" validate:"gt=0"`
}

// CompositingJob is the durable record for one render request. It is the
// single source of truth shared between the submitting client and the
// worker, and is mutated only by the worker that owns it.
type CompositingJob struct {
	ID string `json:"id"`

	// Decoration inputs
	VideoPath          string       `json:"videoPath"`
	FramePNGPath       string       `json:"framePngPath,omitempty"`
	FrameColor         string       `json:"frameColor,omitempty"`
	CustomText         string       `json:"customText,omitempty"`
	CustomTextPosition TextPosition `json:"customTextPosition,omitempty"`
	CustomTextColor    string       `json:"customTextColor,omitempty"`
	Stickers           []Sticker    `json:"stickers,omitempty"`
	FilterID           FilterID     `json:"filterId,omitempty"`

	// Routing context — opaque to the pipeline
	OwnerID       string `json:"ownerId,omitempty"`
	VideoRecordID string `json:"videoRecordId,omitempty"`
	GiftID        string `json:"giftId,omitempty"`

	// Delivery
	RecipientEmail string     `json:"recipientEmail,omitempty"`
	RecipientName  string     `json:"recipientName,omitempty"`
	SendMethod     SendMethod `json:"sendMethod,omitempty"`
	EmailSubject   string     `json:"emailSubject,omitempty"`
	EmailBody      string     `json:"emailBody,omitempty"`
	ChildName      string     `json:"childName,omitempty"`
	GiftName       string     `json:"giftName,omitempty"`
	EventName      string     `json:"eventName,omitempty"`

	// State
	Status       JobStatus `json:"status"`
	OutputPath   string    `json:"outputPath,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// WantsEmailDelivery reports whether the worker should hand the finished
// render to the email collaborator.
func (j *CompositingJob) WantsEmailDelivery() bool {
	return j.RecipientEmail != "" && j.SendMethod == SendMethodEmail
}

// CompositeStartRequest is the client payload for starting a job. The many
// call sites send slightly different field sets; everything optional is
// validated here once instead of inferred downstream.
type CompositeStartRequest struct {
	VideoPath          string       `json:"videoPath" validate:"required"`
	FramePNGPath       string       `json:"framePngPath,omitempty"`
	FrameColor         string       `json:"frameColor,omitempty"`
	CustomText         string       `json:"customText,omitempty" validate:"max=200"`
	CustomTextPosition TextPosition `json:"customTextPosition,omitempty" validate:"omitempty,oneof=top center bottom"`
	CustomTextColor    string       `json:"customTextColor,omitempty"`
	Stickers           []Sticker    `json:"stickers,omitempty" validate:"max=20,dive"`
	FilterID           FilterID     `json:"filterId,omitempty" validate:"omitempty,oneof=none warm cool vintage bw vivid"`

	OwnerID       string `json:"ownerId,omitempty"`
	VideoRecordID string `json:"videoRecordId,omitempty"`
	GiftID        string `json:"giftId,omitempty"`

	RecipientEmail string     `json:"recipientEmail,omitempty" validate:"omitempty,email"`
	RecipientName  string     `json:"recipientName,omitempty"`
	SendMethod     SendMethod `json:"sendMethod,omitempty" validate:"omitempty,oneof=email share none"`
	EmailSubject   string     `json:"emailSubject,omitempty"`
	EmailBody      string     `json:"emailBody,omitempty"`
	ChildName      string     `json:"childName,omitempty"`
	GiftName       string     `json:"giftName,omitempty"`
	EventName      string     `json:"eventName,omitempty"`
}

// CompositeStartResponse is returned when a job has been queued
type CompositeStartResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// CompositeStatusResponse reports the current state of a job
type CompositeStatusResponse struct {
	JobID        string     `json:"jobId"`
	Status       JobStatus  `json:"status"`
	OutputPath   string     `json:"outputPath,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// CompositeResultResponse is returned for a finished job
type CompositeResultResponse struct {
	JobID       string     `json:"jobId"`
	Status      JobStatus  `json:"status"`
	OutputPath  string     `json:"outputPath"`
	VideoURL    string     `json:"videoUrl,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// UploadVideoResponse is returned after a source clip upload
type UploadVideoResponse struct {
	VideoPath string    `json:"videoPath"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}
