package report

import (
	"fmt"
	"io"
	"time"

	"github.com/flaboy/aira-billing/pkg/models"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// WriteReconciliationReport 导出对账报表：支付记录和积分流水各一个
// sheet，给运营排查用（例如套餐解析失败需要人工修正的账户）。
func WriteReconciliationReport(db *gorm.DB, since time.Time, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := writePaymentsSheet(db, f, since); err != nil {
		return err
	}
	if err := writeCreditsSheet(db, f, since); err != nil {
		return err
	}

	// 删掉excelize默认创建的空sheet
	f.DeleteSheet("Sheet1")

	return f.Write(w)
}

func writePaymentsSheet(db *gorm.DB, f *excelize.File, since time.Time) error {
	const sheet = "Payments"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	headers := []string{"ID", "AccountID", "GatewayPaymentID", "Type", "Status", "Value", "Plan", "Cycle", "ConfirmedDate"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}

	var payments []models.PaymentRecord
	if err := db.Where("created_at >= ?", since).Order("id").Find(&payments).Error; err != nil {
		return err
	}

	for row, p := range payments {
		gatewayPaymentID := ""
		if p.GatewayPaymentID != nil {
			gatewayPaymentID = *p.GatewayPaymentID
		}
		confirmed := ""
		if p.ConfirmedDate != nil {
			confirmed = p.ConfirmedDate.Format(time.RFC3339)
		}
		values := []interface{}{p.ID, p.AccountID, gatewayPaymentID, p.Type, p.Status, p.Value.String(), p.PlanType, p.BillingCycle, confirmed}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeCreditsSheet(db *gorm.DB, f *excelize.File, since time.Time) error {
	const sheet = "CreditTransactions"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	headers := []string{"ID", "AccountID", "Type", "Source", "Amount", "BalanceAfter", "ReferenceID", "CreatedAt"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}

	var transactions []models.CreditTransaction
	if err := db.Where("created_at >= ?", since).Order("id").Find(&transactions).Error; err != nil {
		return err
	}

	for row, t := range transactions {
		values := []interface{}{t.ID, t.AccountID, t.Type, t.Source, t.Amount, t.BalanceAfter, t.ReferenceID, t.CreatedAt.Format(time.RFC3339)}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReportFilename 报表文件名，按导出日期命名
func ReportFilename(now time.Time) string {
	return fmt.Sprintf("reconciliation-%s.xlsx", now.Format("2006-01-02"))
}
