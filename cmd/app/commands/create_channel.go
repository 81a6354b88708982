package commands

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/allisson/courier/internal/messaging/http/dto"
	messagingUseCase "github.com/allisson/courier/internal/messaging/usecase"
)

// RunCreateChannel connects a provider account for a tenant. The access token is
// read from io.Reader when accessToken is empty, so it stays out of shell history.
func RunCreateChannel(
	ctx context.Context,
	channelUseCase messagingUseCase.ChannelUseCase,
	logger *slog.Logger,
	tenantID string,
	name string,
	phoneNumberID string,
	accessToken string,
	sendLimitPerMinute int,
	format string,
	io IOTuple,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	tenant, err := uuid.Parse(tenantID)
	if err != nil {
		return fmt.Errorf("invalid tenant-id: %w", err)
	}

	if accessToken == "" {
		accessToken, err = promptForAccessToken(io)
		if err != nil {
			return err
		}
	}

	request := &dto.CreateChannelRequest{
		TenantID:           tenantID,
		Name:               name,
		PhoneNumberID:      phoneNumberID,
		AccessToken:        accessToken,
		SendLimitPerMinute: sendLimitPerMinute,
	}
	if err := request.Validate(); err != nil {
		return fmt.Errorf("invalid channel: %w", err)
	}

	logger.Info("creating channel connection",
		slog.String("tenant_id", tenantID),
		slog.String("phone_number_id", phoneNumberID),
	)

	channel, err := channelUseCase.Create(ctx, tenant, name, phoneNumberID, accessToken, sendLimitPerMinute)
	if err != nil {
		return fmt.Errorf("failed to create channel: %w", err)
	}

	if format == "json" {
		return writeJSON(io.Writer, dto.MapChannelResponse(channel))
	}

	_, err = fmt.Fprintf(io.Writer, "Channel created successfully\nID: %s\nName: %s\nPhone number ID: %s\n",
		channel.ID, channel.Name, channel.PhoneNumberID)
	return err
}

// promptForAccessToken reads one line from the reader.
func promptForAccessToken(io IOTuple) (string, error) {
	_, _ = fmt.Fprint(io.Writer, "Enter access token: ")

	reader := bufio.NewReader(io.Reader)
	line, err := reader.ReadString('\n')
	token := strings.TrimSpace(line)
	if token == "" {
		if err != nil {
			return "", fmt.Errorf("failed to read access token: %w", err)
		}
		return "", fmt.Errorf("access token is required")
	}
	_, _ = fmt.Fprintln(io.Writer)
	return token, nil
}
