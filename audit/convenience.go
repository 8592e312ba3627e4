package audit

import "context"

// LogDecryption records that fields of a record were decrypted.
func (l *Logger) LogDecryption(ctx context.Context, userID, model, recordID string, fields []string) {
	l.Log(ctx, Context{
		UserID:   userID,
		Action:   ActionDecrypt,
		Model:    model,
		RecordID: recordID,
		Fields:   fields,
	})
}

// LogRead records a read of count records of model.
func (l *Logger) LogRead(ctx context.Context, userID, model string, count int, metadata map[string]any) {
	l.Log(ctx, Context{
		UserID:   userID,
		Action:   ActionRead,
		Model:    model,
		Count:    count,
		Metadata: metadata,
	})
}

func (l *Logger) LogCreate(ctx context.Context, userID, model, recordID string, metadata map[string]any) {
	l.Log(ctx, Context{
		UserID:   userID,
		Action:   ActionCreate,
		Model:    model,
		RecordID: recordID,
		Metadata: metadata,
	})
}

// LogUpdate records which fields of a record changed.
func (l *Logger) LogUpdate(ctx context.Context, userID, model, recordID string, fields []string) {
	l.Log(ctx, Context{
		UserID:   userID,
		Action:   ActionUpdate,
		Model:    model,
		RecordID: recordID,
		Fields:   fields,
	})
}

func (l *Logger) LogDelete(ctx context.Context, userID, model, recordID string, metadata map[string]any) {
	l.Log(ctx, Context{
		UserID:   userID,
		Action:   ActionDelete,
		Model:    model,
		RecordID: recordID,
		Metadata: metadata,
	})
}

// LogExport records a data export in the given format.
func (l *Logger) LogExport(ctx context.Context, userID, model, format string, count int) {
	l.Log(ctx, Context{
		UserID:   userID,
		Action:   ActionExport,
		Model:    model,
		Count:    count,
		Metadata: map[string]any{"format": format},
	})
}

func (l *Logger) LogImport(ctx context.Context, userID, model, source string, count int) {
	l.Log(ctx, Context{
		UserID:   userID,
		Action:   ActionImport,
		Model:    model,
		Count:    count,
		Metadata: map[string]any{"source": source},
	})
}

// LogAuth records an authentication event. Failed logins are WARNING.
func (l *Logger) LogAuth(ctx context.Context, userID string, event AuthEvent, metadata map[string]any) {
	l.Log(ctx, Context{
		UserID:    userID,
		Action:    ActionAuth,
		AuthEvent: event,
		Metadata:  metadata,
	})
}

// LogSettingsChange records a change to a user setting.
func (l *Logger) LogSettingsChange(ctx context.Context, userID, setting string, oldValue, newValue any) {
	l.Log(ctx, Context{
		UserID: userID,
		Action: ActionSettings,
		Metadata: map[string]any{
			"setting":  setting,
			"oldValue": oldValue,
			"newValue": newValue,
		},
	})
}
