// Package validation binds and validates API request bodies.
package validation

import (
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/cuongbtq/schedulex/internal/api/dto"
	"github.com/cuongbtq/schedulex/internal/domain"
	"github.com/cuongbtq/schedulex/internal/job"
)

// New returns a validator with the "cron" tag and the request-level rules registered
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// Overrides the built-in cron tag with the scheduler's parser, which also
	// accepts descriptors such as @every 1h. Registration only fails for an
	// empty tag or nil func.
	_ = v.RegisterValidation("cron", validateCron)

	v.RegisterStructValidation(createJobStructValidation, dto.CreateJobRequest{})

	return v
}

func validateCron(fl validatorv10.FieldLevel) bool {
	expr := fl.Field().String()
	if expr == "" {
		return true
	}
	_, err := job.ParseSchedule(expr)
	return err == nil
}

// createJobStructValidation requires a cron expression on RECURRING jobs only
func createJobStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(dto.CreateJobRequest)

	recurring := req.JobType == string(domain.JobTypeRecurring)
	if recurring && req.CronExpression == "" {
		sl.ReportError(req.CronExpression, "cron_expression", "CronExpression", "required_for_recurring", "")
	}
	if !recurring && req.CronExpression != "" {
		sl.ReportError(req.CronExpression, "cron_expression", "CronExpression", "recurring_only", "")
	}
}
