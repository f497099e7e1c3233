package email

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/orgpulse/orgpulse_server/config"
)

type Service struct {
	cfg *config.EmailConfig
}

func NewService(cfg *config.EmailConfig) *Service {
	return &Service{cfg: cfg}
}

// SendTriggerAlert 发送规则触发告警
func (s *Service) SendTriggerAlert(to, ruleName, actionType, detail string) error {
	subject := fmt.Sprintf("规则触发告警：%s - OrgPulse 组织分析平台", ruleName)
	body := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #2563eb;">规则触发告警</h2>
        <p>您好，</p>
        <p>自动化规则 <strong>%s</strong> 在最新组织快照上命中，已执行动作：</p>
        <div style="background-color: #f3f4f6; padding: 15px; margin: 20px 0;">
            <p style="margin: 0;"><strong>动作类型：</strong>%s</p>
            <p style="margin: 0;"><strong>详情：</strong>%s</p>
        </div>
        <p>可登录平台查看触发执行记录与快照详情。</p>
        <hr style="border: none; border-top: 1px solid #e5e7eb; margin: 20px 0;">
        <p style="color: #6b7280; font-size: 12px;">此邮件由系统自动发送，请勿回复。</p>
    </div>
</body>
</html>
`, ruleName, actionType, detail)

	return s.sendHTML(to, subject, body)
}

// SendAnalysisCompleted 发送分析完成通知
func (s *Service) SendAnalysisCompleted(to string, runID int64, overallScore string) error {
	subject := "分析完成通知 - OrgPulse 组织分析平台"
	body := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #2563eb;">分析完成</h2>
        <p>您好，</p>
        <p>分析运行 #%d 已完成，最新组织健康总分：</p>
        <div style="background-color: #f3f4f6; padding: 15px; text-align: center; font-size: 24px; font-weight: bold; margin: 20px 0;">
            %s
        </div>
        <p>可登录平台查看各维度得分与趋势变化。</p>
        <hr style="border: none; border-top: 1px solid #e5e7eb; margin: 20px 0;">
        <p style="color: #6b7280; font-size: 12px;">此邮件由系统自动发送，请勿回复。</p>
    </div>
</body>
</html>
`, runID, overallScore)

	return s.sendHTML(to, subject, body)
}

// SendNotification 发送通用纯文本通知
func (s *Service) SendNotification(to, subject, body string) error {
	return s.sendPlain(to, subject, body)
}

// sendHTML 发送 HTML 邮件
func (s *Service) sendHTML(to, subject, body string) error {
	return s.send(to, subject, body, "text/html; charset=UTF-8")
}

// sendPlain 发送纯文本邮件
func (s *Service) sendPlain(to, subject, body string) error {
	return s.send(to, subject, body, "text/plain; charset=UTF-8")
}

func (s *Service) send(to, subject, body, contentType string) error {
	headers := make(map[string]string)
	headers["From"] = s.cfg.From
	headers["To"] = to
	headers["Subject"] = subject
	headers["MIME-Version"] = "1.0"
	headers["Content-Type"] = contentType

	var msg strings.Builder
	for k, v := range headers {
		msg.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
	}
	msg.WriteString("\r\n")
	msg.WriteString(body)

	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)
	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)

	return smtp.SendMail(addr, auth, s.cfg.From, []string{to}, []byte(msg.String()))
}
