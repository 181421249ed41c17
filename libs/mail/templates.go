package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

const LeadWaitlistSubject = "¡Estás en la lista de espera de Master Party!"

var layout = template.Must(template.New("layout").Parse(`<div style="font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; border: 1px solid #e0e0e0; border-radius: 8px; overflow: hidden;">
  <div style="background-color: #8B5CF6; color: white; padding: 20px; text-align: center;">
    <h1 style="margin: 0; font-size: 24px;">Master Party</h1>
  </div>
  <div style="padding: 30px;">
    <h2 style="font-size: 20px; color: #333;">{{.Title}}</h2>
    {{range .Paragraphs}}<p>{{.}}</p>
    {{end}}<p>— El equipo de Master Party</p>
  </div>
  <div style="background-color: #f7f7f7; color: #888; padding: 20px; text-align: center; font-size: 12px;">
    <p style="margin: 0;">{{.Footer}}</p>
  </div>
</div>`))

type page struct {
	Title      string
	Paragraphs []string
	Footer     string
}

func render(to string, toName string, subject string, p page) (Message, error) {
	var buf bytes.Buffer
	if err := layout.Execute(&buf, p); err != nil {
		return Message{}, err
	}
	text := p.Title + "\n\n" + strings.Join(p.Paragraphs, "\n\n") + "\n\n— El equipo de Master Party\n"
	return Message{To: to, ToName: toName, Subject: subject, HTML: buf.String(), Text: text}, nil
}

// LeadWaitlist is the confirmation sent to every address that joins the provider waitlist.
func LeadWaitlist(to string) (Message, error) {
	return render(to, "", LeadWaitlistSubject, page{
		Title: "¡Estás en la lista!",
		Paragraphs: []string{
			"Hola,",
			"Hemos recibido tu correo y te confirmamos que ya estás en nuestra lista de espera. Serás de los primeros en saber cuándo lancemos el acceso beta para proveedores.",
			"¡Gracias por tu interés en Master Party!",
		},
		Footer: "Recibiste este correo porque te registraste en la lista de espera de masterparty.mx",
	})
}

// BookingDetails is the booking data shown in booking notifications.
type BookingDetails struct {
	BookingID    string
	ServiceName  string
	BusinessName string
	PackageName  string
	BookingDate  string
	TimeSlots    []string
}

func (d BookingDetails) when() string {
	if len(d.TimeSlots) == 0 {
		return d.BookingDate
	}
	return fmt.Sprintf("%s de %s a %s", d.BookingDate, d.TimeSlots[0], slotEnd(d.TimeSlots[len(d.TimeSlots)-1]))
}

// slotEnd returns the time a 30-minute slot ends.
func slotEnd(slot string) string {
	var h, m int
	if _, err := fmt.Sscanf(slot, "%d:%d", &h, &m); err != nil {
		return slot
	}
	total := (h*60 + m + 30) % (24 * 60)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

const bookingFooter = "Recibiste este correo por tu actividad en masterparty.mx"

func BookingRequested(to string, d BookingDetails) (Message, error) {
	return render(to, d.BusinessName, "Nueva solicitud de reserva: "+d.ServiceName, page{
		Title: "Tienes una nueva solicitud de reserva",
		Paragraphs: []string{
			fmt.Sprintf("Un cliente solicitó el paquete %q de %s.", d.PackageName, d.ServiceName),
			"Fecha: " + d.when(),
			"Entra a tu panel de Master Party para aceptarla o rechazarla.",
		},
		Footer: bookingFooter,
	})
}

func BookingAccepted(to string, d BookingDetails) (Message, error) {
	return render(to, "", "¡Tu reserva fue aceptada!", page{
		Title: "¡Tu reserva fue aceptada!",
		Paragraphs: []string{
			fmt.Sprintf("%s aceptó tu solicitud para %s (paquete %q).", d.BusinessName, d.ServiceName, d.PackageName),
			"Fecha: " + d.when(),
		},
		Footer: bookingFooter,
	})
}

func BookingRejected(to string, d BookingDetails) (Message, error) {
	return render(to, "", "Tu solicitud de reserva no fue aceptada", page{
		Title: "Tu solicitud no fue aceptada",
		Paragraphs: []string{
			fmt.Sprintf("%s no puede atender tu solicitud para %s.", d.BusinessName, d.ServiceName),
			"Fecha: " + d.when(),
			"Te invitamos a buscar otra fecha u otro proveedor en Master Party.",
		},
		Footer: bookingFooter,
	})
}

func BookingCanceled(to string, d BookingDetails) (Message, error) {
	return render(to, d.BusinessName, "Reserva cancelada: "+d.ServiceName, page{
		Title: "Un cliente canceló su solicitud",
		Paragraphs: []string{
			fmt.Sprintf("La solicitud para %s (paquete %q) fue cancelada por el cliente.", d.ServiceName, d.PackageName),
			"Fecha: " + d.when(),
		},
		Footer: bookingFooter,
	})
}
