package rest

import (
	domainReconcile "github.com/AzielCF/az-postsync/domains/reconcile"
	pkgError "github.com/AzielCF/az-postsync/pkg/error"
	"github.com/AzielCF/az-postsync/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type Reconcile struct {
	Service domainReconcile.IReconcileUsecase
}

func InitRestReconcile(app fiber.Router, service domainReconcile.IReconcileUsecase) Reconcile {
	rest := Reconcile{Service: service}
	app.Post("/runs", rest.Trigger)
	app.Get("/runs", rest.List)
	app.Get("/runs/last", rest.Last)
	app.Get("/slots/due", rest.Due)
	return rest
}

type triggerRequest struct {
	Force   bool     `json:"force"`
	SlotIDs []string `json:"slot_ids"`
}

// Trigger runs a manual reconciliation and waits for it to finish.
func (controller *Reconcile) Trigger(c *fiber.Ctx) error {
	var request triggerRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&request); err != nil {
			utils.PanicIfNeeded(pkgError.ValidationError("invalid request body: " + err.Error()))
		}
	}

	report, err := controller.Service.Run(c.UserContext(), domainReconcile.RunRequest{
		Trigger: domainReconcile.TriggerManual,
		Force:   request.Force,
		SlotIDs: request.SlotIDs,
	})
	if err != nil {
		if _, ok := err.(pkgError.GenericError); !ok {
			return c.Status(fiber.StatusBadGateway).JSON(utils.ResponseData{
				Status:  fiber.StatusBadGateway,
				Code:    "RUN_FAILED",
				Message: err.Error(),
				Results: report,
			})
		}
		utils.PanicIfNeeded(err)
	}

	if report.SkippedReason == domainReconcile.SkipRunInProgress {
		return c.Status(fiber.StatusConflict).JSON(utils.ResponseData{
			Status:  fiber.StatusConflict,
			Code:    pkgError.ConflictError("").ErrCode(),
			Message: report.SkippedReason,
			Results: report,
		})
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Reconciliation run finished",
		Results: report,
	})
}

func (controller *Reconcile) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 200 {
		utils.PanicIfNeeded(pkgError.ValidationError("limit must be between 1 and 200"))
	}

	reports, err := controller.Service.History(c.UserContext(), limit)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch runs",
		Results: reports,
	})
}

func (controller *Reconcile) Last(c *fiber.Ctx) error {
	reports, err := controller.Service.History(c.UserContext(), 1)
	utils.PanicIfNeeded(err)
	if len(reports) == 0 {
		utils.PanicIfNeeded(pkgError.NotFoundError("no run recorded yet"))
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch last run",
		Results: reports[0],
	})
}

// Due lists what the next run would pick up without touching the document.
func (controller *Reconcile) Due(c *fiber.Ctx) error {
	slots, err := controller.Service.DueSlots(c.UserContext(), c.QueryBool("force", false))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch due slots",
		Results: slots,
	})
}
