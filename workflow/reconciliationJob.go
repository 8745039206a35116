package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/retailpos_backend/config"
	"bitbucket.org/mmdatafocus/retailpos_backend/models"
	"bitbucket.org/mmdatafocus/retailpos_backend/utils"
	"github.com/sirupsen/logrus"
)

// RunReconciliationChecks writes one drift report row per product for one
// business. Intended to run nightly or via an admin trigger.
func RunReconciliationChecks(ctx context.Context, logger *logrus.Logger, businessId string) error {
	ctx = utils.SetBusinessIdInContext(ctx, businessId)
	reports, err := models.RunReconciliationChecks(ctx)
	if err != nil {
		config.LogError(logger, "reconciliationJob.go", "RunReconciliationChecks", "reconciliation checks", businessId, err)
		return err
	}
	logger.WithFields(logrus.Fields{
		"business_id": businessId,
		"products":    len(reports),
	}).Info("reconciliation checks completed")
	return nil
}

// RunReconciliationChecksForAllBusinesses iterates every tenant. A failed
// tenant is logged and skipped so one bad business does not stop the run.
func RunReconciliationChecksForAllBusinesses(ctx context.Context, logger *logrus.Logger) error {
	adminCtx := utils.SetSkipTenantScopeInContext(ctx, true)
	businessIds, err := models.AllBusinessIds(adminCtx)
	if err != nil {
		return err
	}
	for _, businessId := range businessIds {
		if err := RunReconciliationChecks(ctx, logger, businessId); err != nil {
			continue
		}
	}
	return nil
}
