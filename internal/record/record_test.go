package record

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTime(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 12, 16, 8, 30, 0, 123456000, time.FixedZone("EST", -5*3600))
	assert.Equal(t, "2025-12-16T13:30:00.123456Z", FormatTime(ts))
}

func TestJobRecordJSONKeepsNullFields(t *testing.T) {
	t.Parallel()

	rec := JobRecord{
		ScraperVersion:   ScraperVersion,
		RawSchemaVersion: RawSchemaVersion,
		JobIdentity:      JobIdentity{JobIDRaw: String("abc"), JobURL: String("https://example.com/jobs/1")},
	}
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	page, ok := decoded["job_page_raw"].(map[string]any)
	require.True(t, ok)
	value, present := page["salary_raw_text"]
	assert.True(t, present)
	assert.Nil(t, value)
	assert.Equal(t, "1.0.0", decoded["raw_schema_version"])
	assert.Equal(t, "abc", rec.ID())
}

func TestStringHelper(t *testing.T) {
	t.Parallel()

	assert.Nil(t, String(""))
	require.NotNil(t, String("x"))
	assert.Equal(t, "x", *String("x"))
	assert.Equal(t, 3, *Int(3))
}

func TestValidateJobAcceptsWellFormedRecord(t *testing.T) {
	t.Parallel()

	rec := &JobRecord{
		JobIdentity: JobIdentity{JobIDRaw: String("id-1")},
		JobPageRaw: JobPageRaw{
			JobDescriptionRawText: String("Build data pipelines – remote ✓"),
			PageMetadata:          map[string]string{"seniority_level": "Mid-Senior level"},
		},
		QualityTracking: JobQuality{StatusCodeHistory: []int{429, 200}},
	}
	assert.NoError(t, ValidateJob(rec))
}

func TestValidateJobReportsRecordAndField(t *testing.T) {
	t.Parallel()

	rec := &JobRecord{
		JobIdentity: JobIdentity{JobIDRaw: String("id-2")},
		JobPageRaw:  JobPageRaw{SalaryRawText: String("\xff\xfe")},
	}
	err := ValidateJob(rec)
	require.Error(t, err)

	var serr *SerializationError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "id-2", serr.RecordID)
	assert.Equal(t, "job_page_raw.salary_raw_text", serr.Field)
	assert.ErrorIs(t, err, ErrInvalidUTF8)
}

func TestValidateCompanyChecksMapValues(t *testing.T) {
	t.Parallel()

	rec := &CompanyRecord{
		CompanyIdentity: CompanyIdentity{CompanyIDHash: "c-1"},
		CompanyPageRaw:  CompanyPageRaw{MetadataMethods: map[string]string{"industry": "bad\xc3"}},
	}
	var serr *SerializationError
	require.ErrorAs(t, ValidateCompany(rec), &serr)
	assert.Equal(t, "company_page_raw.metadata_methods.industry", serr.Field)
	assert.Equal(t, "c-1", serr.RecordID)
}

func TestValidateListing(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateListing(&Listing{TitleRaw: String("Data Scientist")}))
	assert.Error(t, ValidateListing(&Listing{JobURL: String("https://x/1"), TitleRaw: String("\xff")}))
}
