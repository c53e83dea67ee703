package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"

	"github.com/google/uuid"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SanitizeName оставляет в имени файла только безопасные символы.
func SanitizeName(name string) string {
	name = path.Base(name)
	name = unsafeChars.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == ".." || name == "_" {
		name = "file"
	}
	return name
}

// DisputeProofPath disputes/<dispute>/<unixMillis>-<name>.
func DisputeProofPath(disputeID uuid.UUID, name string, at time.Time) string {
	return fmt.Sprintf("disputes/%s/%d-%s", disputeID, at.UnixMilli(), SanitizeName(name))
}

// MilestoneSubmissionPath milestone-submissions/<job>/<milestone>/<unixMillis>-<name>.
func MilestoneSubmissionPath(jobID, milestoneID uuid.UUID, name string, at time.Time) string {
	return fmt.Sprintf("milestone-submissions/%s/%s/%d-%s", jobID, milestoneID, at.UnixMilli(), SanitizeName(name))
}

// ContractProofPath contracts/<contract>/<kind>/<unixMillis>-<name>.
func ContractProofPath(contractID uuid.UUID, kind, name string, at time.Time) string {
	return fmt.Sprintf("contracts/%s/%s/%d-%s", contractID, kind, at.UnixMilli(), SanitizeName(name))
}
