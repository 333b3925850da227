package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type testEvent struct {
	Step     string `json:"step" validate:"required"`
	Progress *int   `json:"progress,omitempty" validate:"omitempty,min=0,max=100"`
	Badge    string `json:"privacy,omitempty" validate:"omitempty,oneof=processing_local cloud_processing"`
}

func intPtr(v int) *int { return &v }

func TestValidateStruct(t *testing.T) {
	t.Run("valid struct", func(t *testing.T) {
		assert.NoError(t, ValidateStruct(&testEvent{Step: "focus_left", Progress: intPtr(40)}))
	})

	t.Run("missing required field", func(t *testing.T) {
		err := ValidateStruct(&testEvent{})
		assert.True(t, IsValidationError(err))
		assert.Equal(t, "step is required", GetValidationFields(err)["step"])
	})

	t.Run("progress out of range", func(t *testing.T) {
		err := ValidateStruct(&testEvent{Step: "a", Progress: intPtr(101)})
		assert.Equal(t, "progress must be at most 100", GetValidationFields(err)["progress"])

		err = ValidateStruct(&testEvent{Step: "a", Progress: intPtr(-1)})
		assert.Equal(t, "progress must be at least 0", GetValidationFields(err)["progress"])
	})

	t.Run("unknown badge", func(t *testing.T) {
		err := ValidateStruct(&testEvent{Step: "a", Badge: "broadcast"})
		assert.Contains(t, GetValidationFields(err)["privacy"], "must be one of")
	})
}

type testBatch struct {
	Session string      `json:"sessionId" validate:"required"`
	Events  []testEvent `json:"events" validate:"required,min=1,dive"`
}

func TestValidateStruct_NestedPaths(t *testing.T) {
	err := ValidateStruct(&testBatch{Events: []testEvent{{Step: "a"}, {Progress: intPtr(150)}}})

	fields := GetValidationFields(err)
	assert.Equal(t, "sessionId is required", fields["sessionId"])
	assert.Equal(t, "events[1].step is required", fields["events[1].step"])
	assert.Equal(t, "events[1].progress must be at most 100", fields["events[1].progress"])
	assert.Equal(t,
		"Validation failed: events[1].progress must be at most 100; events[1].step is required; sessionId is required",
		err.Error())
}

func TestValidationError_ErrorWithoutFields(t *testing.T) {
	assert.Equal(t, "Validation failed", (&ValidationError{Message: "Validation failed"}).Error())
}

func TestGetValidationFields_NonValidationError(t *testing.T) {
	assert.Nil(t, GetValidationFields(assert.AnError))
	assert.False(t, IsValidationError(assert.AnError))
}

func TestFieldsToDetails(t *testing.T) {
	assert.Nil(t, FieldsToDetails(nil))
	assert.Equal(t, map[string]interface{}{"step": "step is required"},
		FieldsToDetails(map[string]string{"step": "step is required"}))
}
