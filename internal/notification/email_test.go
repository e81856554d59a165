package notification

import (
	"context"
	stdErrors "errors"
	"net"
	"net/textproto"
	"strings"
	"time"

	"github.com/frahmantamala/atelier/internal"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// smtpServer accepts connections on a loopback port. A silent server never
// sends its greeting.
type smtpServer struct {
	listener net.Listener
	silent   bool
	messages chan string
}

func newSMTPServer(silent bool) *smtpServer {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())

	srv := &smtpServer{listener: l, silent: silent, messages: make(chan string, 1)}
	go srv.serve()
	return srv
}

func (s *smtpServer) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *smtpServer) handle(conn net.Conn) {
	defer conn.Close()
	if s.silent {
		_, _ = conn.Read(make([]byte, 1))
		return
	}

	tp := textproto.NewConn(conn)
	_ = tp.PrintfLine("220 localhost ESMTP")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		switch verb := strings.ToUpper(strings.Fields(line)[0]); verb {
		case "EHLO", "HELO":
			_ = tp.PrintfLine("250 localhost")
		case "MAIL", "RCPT":
			_ = tp.PrintfLine("250 ok")
		case "DATA":
			_ = tp.PrintfLine("354 go ahead")
			data, err := tp.ReadDotBytes()
			if err != nil {
				return
			}
			s.messages <- string(data)
			_ = tp.PrintfLine("250 queued")
		case "QUIT":
			_ = tp.PrintfLine("221 bye")
			return
		default:
			_ = tp.PrintfLine("502 not implemented")
		}
	}
}

func (s *smtpServer) sender() *SMTPSender {
	addr := s.listener.Addr().(*net.TCPAddr)
	return NewSMTPSender(internal.NotificationConfig{
		SMTPHost: "127.0.0.1",
		SMTPPort: addr.Port,
		From:     "no-reply@atelier.dev",
	})
}

var _ = Describe("SMTPSender", func() {
	It("should deliver the message through the server", func() {
		srv := newSMTPServer(false)
		defer srv.listener.Close()

		err := srv.sender().SendEmail(context.Background(), "student@example.com", "Welcome", "Your course is ready.")

		Expect(err).NotTo(HaveOccurred())
		var message string
		Eventually(srv.messages).Should(Receive(&message))
		Expect(message).To(ContainSubstring("Subject: Welcome"))
		Expect(message).To(ContainSubstring("Your course is ready."))
	})

	It("should give up when the context ends while the server stalls", func() {
		srv := newSMTPServer(true)
		defer srv.listener.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		started := time.Now()
		err := srv.sender().SendEmail(ctx, "student@example.com", "Welcome", "Your course is ready.")

		Expect(stdErrors.Is(err, context.DeadlineExceeded)).To(BeTrue())
		Expect(time.Since(started)).To(BeNumerically("<", 2*time.Second))
	})

	It("should not dial once the context is done", func() {
		srv := newSMTPServer(false)
		defer srv.listener.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := srv.sender().SendEmail(ctx, "student@example.com", "Welcome", "Your course is ready.")

		Expect(err).To(MatchError(context.Canceled))
		Consistently(srv.messages, 100*time.Millisecond).ShouldNot(Receive())
	})
})
