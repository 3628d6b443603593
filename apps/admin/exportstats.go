package main

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/clonecademy/clonecademy/core"
	"github.com/clonecademy/clonecademy/core/course"
)

const (
	statsSheet      = "Statistics"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var errNoAdminEmails = errors.New("no admin email configured")

// exportStats writes every user's tries to the spreadsheet fp and, when email is set,
// sends it to the configured admin emails.
func (cli *commandLine) exportStats(fp string, email bool) error {
	if email && len(cli.conf.AdminEmails) == 0 {
		return errNoAdminEmails
	}

	stats, err := cli.courseSvc.AllStatistics(context.Background())
	if err != nil {
		return errors.Wrap(err, "querying statistics")
	}
	buf, err := statsSpreadsheet(stats)
	if err != nil {
		return errors.Wrap(err, "building spreadsheet")
	}
	if err = os.WriteFile(fp, buf.Bytes(), 0o644); err != nil {
		return errors.Wrap(err, "writing spreadsheet")
	}
	fmt.Fprintf(cli.out, "%d row(s) written to %s\n", len(stats), fp)

	if !email {
		return nil
	}
	msg := &core.EmailMessage{
		Subject:  "Statistics export",
		Category: core.MailCategoryStatistics,
		BodyStr:  fmt.Sprintf("Find attached the tries of every user (%d rows).", len(stats)),
	}
	for _, addr := range cli.conf.AdminEmails {
		msg.To = append(msg.To, mail.Address{Address: addr})
	}
	if err = msg.Attach(bytes.NewReader(buf.Bytes()), filepath.Base(fp), xlsxContentType); err != nil {
		return errors.Wrap(err, "attaching spreadsheet")
	}
	cli.mailSvc.SendMessages(msg)
	return nil
}

func statsSpreadsheet(stats []course.QuestionStatistic) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", statsSheet); err != nil {
		return nil, err
	}
	header := []interface{}{"User", "Course", "Question", "Solved", "Tries"}
	if err := f.SetSheetRow(statsSheet, "A1", &header); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if err = f.SetRowStyle(statsSheet, 1, 1, bold); err != nil {
		return nil, err
	}
	if err = f.SetColWidth(statsSheet, "A", "C", 30); err != nil {
		return nil, err
	}

	for i, s := range stats {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []interface{}{s.Username, s.Course, s.Question, s.Solved, s.Tries}
		if err = f.SetSheetRow(statsSheet, cell, &row); err != nil {
			return nil, err
		}
	}
	return f.WriteToBuffer()
}
