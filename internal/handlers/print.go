package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/jung-kurt/gofpdf"
	"github.com/proyeccion-moden/modengo/internal/models"
	"github.com/skip2/go-qrcode"
)

// pairingCodeQR renders a pairing code as a QR PNG so the device can show a
// scannable code next to the 6 characters.
// Payload protocol: MODEN$1$CODE
func (r *Router) pairingCodeQR(w http.ResponseWriter, req *http.Request) {
	code := strings.ToUpper(mux.Vars(req)["code"])
	if len(code) != 6 {
		respondError(w, http.StatusBadRequest, "Pairing code must be 6 characters")
		return
	}

	png, err := qrcode.Encode("MODEN$1$"+code, qrcode.Medium, 256)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to generate QR")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

// pairingSheetPDF produces a printable A4 sheet with the desk name and its
// current pairing code, for taping next to the desk while a technician
// walks the floor pairing devices.
func (r *Router) pairingSheetPDF(w http.ResponseWriter, req *http.Request) {
	var desk models.Desk
	if err := r.db.First(&desk, pathID(req)).Error; err != nil {
		respondError(w, http.StatusNotFound, "Desk not found")
		return
	}

	grant, err := r.sessions.RequestDeskCode(desk.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to issue pairing code")
		return
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 28)
	pdf.CellFormat(0, 20, desk.Name, "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(0, 10, "Enter this code in the dashboard to pair the display:", "", 1, "C", false, 0, "")

	pdf.Ln(10)
	pdf.SetFont("Courier", "B", 56)
	pdf.CellFormat(0, 30, grant.Code, "", 1, "C", false, 0, "")

	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 8, fmt.Sprintf("Code expires at %s", grant.ExpiresAt.Format("15:04 MST")), "", 1, "C", false, 0, "")

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=desk-%d-pairing.pdf", desk.ID))
	if err := pdf.Output(w); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to render PDF")
	}
}
